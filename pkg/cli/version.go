package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	pkgutils "example.com/icmpping/pkg/utils"
)

type VersionCmd struct {
	JSON bool `name:"json" help:"Print the build information as JSON"`
}

func (versionCmd *VersionCmd) Run(sharedCtx *pkgutils.GlobalSharedContext) error {
	return versionCmd.write(os.Stdout, sharedCtx)
}

func (versionCmd *VersionCmd) write(w io.Writer, sharedCtx *pkgutils.GlobalSharedContext) error {
	if versionCmd.JSON {
		return json.NewEncoder(w).Encode(sharedCtx.BuildVersion)
	}
	_, err := fmt.Fprintf(w, "icmpping %s\n", sharedCtx.BuildVersion)
	return err
}
