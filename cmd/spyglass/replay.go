package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lai-labs/spyglass/internal/events"
)

const replayBatchSize = 500

var replayCmd = &cobra.Command{
	Use:   "replay <events.jsonl>",
	Short: "Load behavior events from a JSONL file",
	Long: `Read one BehaviorEvent per line and store them in batches. Useful for
seeding a development database or re-running the agents over an exported
event stream.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open events file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var (
			batch []*events.BehaviorEvent
			total int
			line  int
		)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := store.StoreBehaviorEvents(cmd.Context(), batch); err != nil {
				return fmt.Errorf("failed to store batch ending at line %d: %w", line, err)
			}
			total += len(batch)
			batch = batch[:0]
			return nil
		}

		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}
			var e events.BehaviorEvent
			if err := json.Unmarshal(raw, &e); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			if e.SessionID == "" || !e.Type.IsValid() {
				return fmt.Errorf("line %d: invalid event (session=%q type=%q)", line, e.SessionID, e.Type)
			}
			if e.ID == "" {
				e.ID = uuid.New().String()
			}
			if e.TenantID == "" {
				e.TenantID = events.AnonymousID
			}
			if e.UserID == "" {
				e.UserID = events.AnonymousID
			}
			batch = append(batch, &e)
			if len(batch) == replayBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read events file: %w", err)
		}
		if err := flush(); err != nil {
			return err
		}

		fmt.Printf("Replayed %d events from %s\n", total, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
