package equipment

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
// Init Equipment
// ==========================
func InitEquipment(rootCmd *cobra.Command) {

	equipmentCmd := &cobra.Command{
		Use:   "equipment",
		Short: "Manage equipment",
	}

	equipmentCmd.AddCommand(
		listEquipmentCmd(),
		showEquipmentCmd(),
		scrapEquipmentCmd(),
	)

	rootCmd.AddCommand(equipmentCmd)
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

// ==========================
// LIST
// ==========================
func listEquipmentCmd() *cobra.Command {
	var status string
	var search string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List equipment",
		Run: func(cmd *cobra.Command, args []string) {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			if status != "" {
				q.Set("status", status)
			}
			if search != "" {
				q.Set("search", search)
			}

			resp, err := authedRequest("GET", "/v1/equipment?"+q.Encode(), nil)
			if err != nil {
				fmt.Println(err)
				return
			}
			defer resp.Body.Close()

			if asJSON {
				var out any
				json.NewDecoder(resp.Body).Decode(&out)
				b, _ := json.MarshalIndent(out, "", "  ")
				fmt.Println(string(b))
				return
			}

			var out struct {
				Items []models.Equipment `json:"items"`
				Total int                `json:"total"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				fmt.Println(err)
				return
			}

			rows := make([][]any, 0, len(out.Items))
			for _, e := range out.Items {
				validUntil := ""
				if e.ValidUntil != nil {
					validUntil = e.ValidUntil.Format("2006-01-02")
				}
				rows = append(rows, []any{
					e.ID, e.Name, e.Model, e.InternalID, e.Status, validUntil,
				})
			}
			output.RenderTable([]string{"ID", "Name", "Model", "Internal ID", "Status", "Valid Until"}, rows)
			fmt.Printf("Total: %d\n", out.Total)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&search, "search", "", "search name, model or internal id")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")

	return cmd
}

// ==========================
// SHOW
// ==========================
func showEquipmentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show one equipment",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			resp, err := authedRequest("GET", "/v1/equipment/"+args[0], nil)
			if err != nil {
				fmt.Println(err)
				return
			}
			defer resp.Body.Close()

			var out any
			json.NewDecoder(resp.Body).Decode(&out)
			b, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(b))
		},
	}
}

// ==========================
// SCRAP
// ==========================
func scrapEquipmentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrap [id...]",
		Short: "Mark equipment as scrapped",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, a := range args {
				id, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("invalid id %q", a)
				}
				ids = append(ids, id)
			}

			body, _ := json.Marshal(map[string]any{"ids": ids, "status": models.StatusScrapped})
			resp, err := authedRequest("POST", "/v1/equipment/batch-status", body)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				b, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("scrap failed (status %d): %s", resp.StatusCode, string(b))
			}

			var out any
			json.NewDecoder(resp.Body).Decode(&out)
			b, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(b))
			return nil
		},
	}
}
