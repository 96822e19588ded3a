package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/balco-dev/balco/internal/config"
	"github.com/balco-dev/balco/internal/errors"
	"github.com/balco-dev/balco/pkg/board"
	"github.com/spf13/cobra"
)

func roomsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Inspect stored rooms",
		Long: `Read rooms straight from the configured store.

These commands never modify a room. Run them against a stopped
server when using the file backend to see what it last wrote.`,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.ConfigFileName, "Path to the config file")

	cmd.AddCommand(
		roomsListCmd(&configPath),
		roomsShowCmd(&configPath),
	)
	return cmd
}

func roomsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rooms with their note and connection counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms, err := loadRooms(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			return printRoomList(cmd.OutOrStdout(), rooms)
		},
	}
}

func roomsShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <roomID>",
		Short: "Print a room snapshot as JSON",
		Long: `Print a room snapshot as JSON on stdout.

A summary of note and connection ids goes to stderr, followed by any
connection whose from or to note is no longer in the room.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms, err := loadRooms(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			snap, ok := rooms[args[0]]
			if !ok {
				return errors.New(errors.CodeRoomMissing).
					WithDetailf("No room %q in the store", args[0]).
					WithSuggestion("Run 'balco rooms list' to see stored rooms")
			}
			data, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			printRoomSummary(cmd.ErrOrStderr(), snap)
			return nil
		},
	}
}

func loadRooms(ctx context.Context, configPath string) (map[string]board.Snapshot, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath, nil)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	rooms, err := backend.Load(ctx)
	if err != nil {
		return nil, errors.New(errors.CodeStoreRead).Wrap(err)
	}
	return rooms, nil
}

func printRoomList(w io.Writer, rooms map[string]board.Snapshot) error {
	ids := make([]string, 0, len(rooms))
	for id := range rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROOM\tNAME\tNOTES\tCONNECTIONS")
	for _, id := range ids {
		r := rooms[id]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", id, r.Name, len(r.Notes), len(r.Connections))
	}
	return tw.Flush()
}

func printRoomSummary(w io.Writer, snap board.Snapshot) {
	fmt.Fprintf(w, "notes (%d): %s\n", len(snap.Notes), strings.Join(snap.NoteIDs(), ", "))
	fmt.Fprintf(w, "connections (%d): %s\n", len(snap.Connections), strings.Join(snap.ConnectionIDs(), ", "))
	for _, c := range board.FromSnapshot(snap).DanglingConnections() {
		fmt.Fprintf(w, "dangling connection %s: %s -> %s\n", c.ID, c.From, c.To)
	}
}
