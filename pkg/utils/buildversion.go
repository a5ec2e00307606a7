package utils

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const KeyHEAD = "HEAD"
const KeyTags = "tags"
const KeyBranch = "branch"
const KeyBuildDate = "buildDate"

type BuildVersion struct {
	raw       []byte              `json:"-"`
	data      map[string][]string `json:"-"`
	HEAD      *string             `json:"HEAD,omitempty"`
	Tags      []string            `json:"tags,omitempty"`
	Branch    *string             `json:"branch,omitempty"`
	BuildDate *time.Time          `json:"buildDate,omitempty"`
}

// NewBuildVersion parses "key: value..." lines as written by the build
// script. Malformed lines are skipped.
func NewBuildVersion(rawText []byte) (*BuildVersion, error) {

	bv := new(BuildVersion)
	bv.raw = make([]byte, len(rawText))
	copy(bv.raw, rawText)

	bv.data = make(map[string][]string)
	scanner := bufio.NewScanner(bytes.NewReader(rawText))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, rest, found := strings.Cut(line, ":")
		if !found {
			slog.Debug("skipping build version line", "line", line)
			continue
		}
		for _, val := range strings.Fields(rest) {
			bv.data[key] = append(bv.data[key], val)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan build version: %w", err)
	}

	if headStrs, ok := bv.data[KeyHEAD]; ok && len(headStrs) > 0 {
		headStr := headStrs[0]
		bv.HEAD = &headStr
	}

	if tagsStrs, ok := bv.data[KeyTags]; ok && len(tagsStrs) > 0 {
		bv.Tags = append([]string(nil), tagsStrs...)
	}

	if branchStrs, ok := bv.data[KeyBranch]; ok && len(branchStrs) > 0 {
		branchStr := branchStrs[0]
		bv.Branch = &branchStr
	}

	if buildDateStrs, ok := bv.data[KeyBuildDate]; ok && len(buildDateStrs) > 0 {
		buildDateStr := buildDateStrs[0]
		buildDate, err := time.Parse(time.RFC3339, buildDateStr)
		if err != nil {
			slog.Debug("failed to parse build date", "value", buildDateStr, "error", err)
		} else if !buildDate.IsZero() {
			bv.BuildDate = &buildDate
		}
	}

	return bv, nil
}

// String renders a one-line summary such as "v1.2.0 (main@1a2b3c4, 2024-05-01T10:00:00Z)".
func (bv *BuildVersion) String() string {
	if bv == nil {
		return "unknown"
	}

	version := "dev"
	if len(bv.Tags) > 0 {
		version = bv.Tags[0]
	}

	details := make([]string, 0, 2)
	if bv.HEAD != nil {
		head := *bv.HEAD
		if len(head) > 7 {
			head = head[:7]
		}
		if bv.Branch != nil {
			head = *bv.Branch + "@" + head
		}
		details = append(details, head)
	}
	if bv.BuildDate != nil {
		details = append(details, bv.BuildDate.UTC().Format(time.RFC3339))
	}
	if len(details) == 0 {
		return version
	}
	return fmt.Sprintf("%s (%s)", version, strings.Join(details, ", "))
}

// GlobalSharedContext carries process-wide values bound into kong commands.
type GlobalSharedContext struct {
	BuildVersion *BuildVersion
	StartedAt    time.Time
}
