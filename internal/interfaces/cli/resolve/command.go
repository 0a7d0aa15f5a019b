package resolve

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/orris-inc/soundmesh/internal/domain/track"
	"github.com/orris-inc/soundmesh/internal/infrastructure/nodelink"
	"github.com/orris-inc/soundmesh/internal/interfaces/cli/bootstrap"
	"github.com/orris-inc/soundmesh/internal/shared/errors"
)

const resolveTimeout = 15 * time.Second

func NewCommand(flags *bootstrap.Flags) *cobra.Command {
	var nodeName string

	cmd := &cobra.Command{
		Use:   "resolve <query>",
		Short: "Resolve a track identifier or search query on a node",
		Long: `Ask a configured node to resolve an identifier, URL or search query
(for example "ytsearch:never gonna give you up") and print the tracks it returns.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, nodeName, args[0])
		},
	}

	cmd.Flags().StringVarP(&nodeName, "node", "n", "", "Node to ask (default: first configured node)")

	return cmd
}

func run(cmd *cobra.Command, flags *bootstrap.Flags, nodeName, query string) error {
	cfg, log, err := bootstrap.Init(flags)
	if err != nil {
		return err
	}
	// Resolution only needs the node's REST side.
	cfg.Redis.Enabled = false

	ctx, cancel := context.WithTimeout(cmd.Context(), resolveTimeout)
	defer cancel()

	fl, err := bootstrap.NewFleet(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer fl.Close()

	link, err := pickLink(fl.Client.Links(), nodeName)
	if err != nil {
		return err
	}

	res, err := link.ResolveTrack(ctx, query)
	if err != nil {
		return err
	}

	return printResult(cmd.OutOrStdout(), link.Node().Name(), res)
}

func pickLink(links []*nodelink.Link, name string) (*nodelink.Link, error) {
	if len(links) == 0 {
		return nil, errors.NewValidationError("no nodes configured")
	}
	if name == "" {
		return links[0], nil
	}
	for _, l := range links {
		if l.Node().Name() == name {
			return l, nil
		}
	}
	return nil, errors.NewNotFoundError(fmt.Sprintf("node %q is not configured", name))
}

func printResult(w io.Writer, nodeName string, res *track.LoadResult) error {
	fmt.Fprintf(w, "Node:      %s\n", nodeName)
	fmt.Fprintf(w, "Load type: %s\n", res.Type)
	if res.Playlist != nil && res.Playlist.Name != "" {
		fmt.Fprintf(w, "Playlist:  %s\n", res.Playlist.Name)
	}

	tracks := res.Tracks()
	if len(tracks) == 0 {
		fmt.Fprintln(w, "No tracks.")
		return nil
	}

	var selected *track.AudioTrack
	if res.Playlist != nil {
		selected = res.Playlist.Selected()
	}

	for i, t := range tracks {
		if t == nil {
			continue
		}
		marker := " "
		if t == selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s%3d. %s - %s [%s] %s\n", marker, i+1, t.Author, t.Title, formatDuration(t), t.Identifier)
	}
	return nil
}

func formatDuration(t *track.AudioTrack) string {
	if t.Stream {
		return "live"
	}
	d := time.Duration(t.Duration) * time.Millisecond
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
