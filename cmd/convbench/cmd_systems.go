package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSystemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "systems",
		Short: "List the benchmark systems",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			defs := newRegistry().ByStages()

			if jsonOut {
				type jsonSystem struct {
					Name        string    `json:"name"`
					Title       string    `json:"title"`
					Stages      int       `json:"stages"`
					ProfileTime float64   `json:"profile_time"`
					Tickmarks   []float64 `json:"tickmarks,omitempty"`
					Fingerprint string    `json:"fingerprint"`
				}
				out := make([]jsonSystem, 0, len(defs))
				for _, d := range defs {
					out = append(out, jsonSystem{
						Name:        d.Name,
						Title:       d.Title,
						Stages:      d.Stages,
						ProfileTime: d.ProfileTime,
						Tickmarks:   d.Tickmarks,
						Fingerprint: d.Fingerprint(),
					})
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"systems": out,
					"count":   len(out),
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-26s %-26s %7s %10s\n", "NAME", "TITLE", "STAGES", "BUDGET")
			for _, d := range defs {
				fmt.Fprintf(w, "%-26s %-26s %7d %9gs\n", d.Name, d.Title, d.Stages, d.ProfileTime)
			}
			return nil
		},
	}
}
