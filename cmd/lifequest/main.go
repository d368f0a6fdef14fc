// Command lifequest is a life-gamification tracker: quests, resources,
// deadlines and a daily reset.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/lifequest/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
