package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"notifyrelay/internal/health"
)

func newHealthCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "health [url]",
		Short: "Check that a relay answers /health",
		Long: `Check that a relay answers GET /health within 5 seconds.

Without an argument the master URL from agent.json is used, then the one
from master.json.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := ""
			if len(args) == 1 {
				url = args[0]
			} else {
				var err error
				if url, err = defaultMasterURL(g); err != nil {
					return err
				}
			}
			if !health.Check(cmd.Context(), url) {
				return fmt.Errorf("%s is not healthy", url)
			}
			printf(cmd, "%s is healthy\n", url)
			return nil
		},
	}
}

// defaultMasterURL prefers agent.json and falls back to master.json.
func defaultMasterURL(g *globals) (string, error) {
	store, err := g.store()
	if err != nil {
		return "", err
	}
	agent, err := store.ReadAgent()
	if err != nil {
		return "", err
	}
	if agent != nil && agent.MasterURL != "" {
		return agent.MasterURL, nil
	}
	master, err := store.ReadMaster()
	if err != nil {
		return "", err
	}
	if master != nil {
		return master.URL, nil
	}
	return "", errors.New("no relay URL given and neither agent.json nor master.json exists (run: notifyrelay install agent)")
}
