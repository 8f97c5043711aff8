package logs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/metroware/equip-ledger/cmd/cli/config"
	"github.com/metroware/equip-ledger/cmd/cli/output"
	"github.com/metroware/equip-ledger/internal/models"
	"github.com/spf13/cobra"
)

// ==========================
// Init Logs
// ==========================
func InitLogs(rootCmd *cobra.Command) {

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect and roll back operation logs",
	}

	logsCmd.AddCommand(
		listLogsCmd(),
		showLogCmd(),
		historyCmd(),
		rollbackCmd(),
		statsCmd(),
		cleanupCmd(),
	)

	rootCmd.AddCommand(logsCmd)
}

func authedRequest(method, path string, body []byte) (*http.Response, error) {
	token, err := config.ReadToken()
	if err != nil {
		return nil, fmt.Errorf("please login first")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, config.APIURL()+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return http.DefaultClient.Do(req)
}

func printJSON(resp *http.Response) {
	var out any
	json.NewDecoder(resp.Body).Decode(&out)
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

// ==========================
// LIST
// ==========================
func listLogsCmd() *cobra.Command {
	var equipmentID int
	var operationType string
	var rollbacksOnly bool
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List operation log entries",
		Run: func(cmd *cobra.Command, args []string) {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			if equipmentID > 0 {
				q.Set("equipment_id", strconv.Itoa(equipmentID))
			}
			if operationType != "" {
				q.Set("operation_type", operationType)
			}
			if rollbacksOnly {
				q.Set("is_rollback", "true")
			}

			resp, err := authedRequest("GET", "/v1/logs?"+q.Encode(), nil)
			if err != nil {
				fmt.Println(err)
				return
			}
			defer resp.Body.Close()

			if asJSON {
				printJSON(resp)
				return
			}

			var out struct {
				Items []models.OperationLog `json:"items"`
				Total int                   `json:"total"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				fmt.Println(err)
				return
			}

			rows := make([][]any, 0, len(out.Items))
			for _, e := range out.Items {
				rollback := ""
				if e.IsRollback {
					rollback = "yes"
				}
				rows = append(rows, []any{
					e.ID, e.Action, e.OperationType, e.Description, e.UserID,
					rollback, e.CreatedAt.Format("2006-01-02 15:04"),
				})
			}
			output.RenderTable([]string{"ID", "Action", "Type", "Description", "User", "Rollback", "Created"}, rows)
			fmt.Printf("Total: %d\n", out.Total)
		},
	}

	cmd.Flags().IntVar(&equipmentID, "equipment", 0, "filter by equipment id")
	cmd.Flags().StringVar(&operationType, "type", "", "filter by operation type")
	cmd.Flags().BoolVar(&rollbacksOnly, "rollbacks", false, "show only rollback entries")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")

	return cmd
}

// ==========================
// SHOW
// ==========================
func showLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show one log entry",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := authedRequest("GET", "/v1/logs/"+args[0], nil)
			if err != nil {
				fmt.Println(err)
				return
			}
			defer resp.Body.Close()
			printJSON(resp)
		},
	}
}

// ==========================
// HISTORY
// ==========================
func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [id]",
		Short: "Show an entry's rollback chain and current equipment state",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := authedRequest("GET", "/v1/logs/"+args[0]+"/history", nil)
			if err != nil {
				fmt.Println(err)
				return
			}
			defer resp.Body.Close()
			printJSON(resp)
		},
	}
}

// ==========================
// ROLLBACK
// ==========================
func rollbackCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "rollback [id]",
		Short: "Roll back a logged operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return fmt.Errorf("--reason is required")
			}

			body, _ := json.Marshal(map[string]string{"reason": reason})
			resp, err := authedRequest("POST", "/v1/logs/"+args[0]+"/rollback", body)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusCreated {
				b, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("rollback failed (status %d): %s", resp.StatusCode, string(b))
			}

			fmt.Println("Rollback applied.")
			printJSON(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the operation is being rolled back")

	return cmd
}

// ==========================
// STATS
// ==========================
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show operation log statistics",
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := authedRequest("GET", "/v1/logs/statistics", nil)
			if err != nil {
				fmt.Println(err)
				return
			}
			defer resp.Body.Close()
			printJSON(resp)
		},
	}
}

// ==========================
// CLEANUP
// ==========================
func cleanupCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired log entries (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := authedRequest("DELETE", "/v1/logs/cleanup?days="+strconv.Itoa(days), nil)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("cleanup failed (status %d): %s", resp.StatusCode, string(b))
			}
			printJSON(resp)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 365, "delete entries older than this many days")

	return cmd
}
