package cli

import (
	"context"
	"fmt"

	"github.com/maxdollinger/burrow/internal"
)

// VersionCmd is 'burrow version'.
type VersionCmd struct{}

func (c *VersionCmd) Run(ctx context.Context) error {
	fmt.Println(internal.VersionString())
	return nil
}
