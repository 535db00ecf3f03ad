// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"contract-portal-service/internal/crypto"
)

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	rootCmd := &cobra.Command{
		Use:   "portalctl",
		Short: "Contract Portal Service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("PORTALCTL_API_URL")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set PORTALCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(expiringCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("portalctl version %s\n", version)
		},
	}
}

// keygenCmd は契約金額暗号化用のマスターキーを生成する。
// オフラインで完結するためAPI接続は不要。
func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new 32-byte encryption key (hex)",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("generating key: %w", err)
			}

			if output == "json" {
				out, err := json.Marshal(map[string]string{"key": key})
				if err != nil {
					return fmt.Errorf("encoding output: %w", err)
				}
				fmt.Println(string(out))
			} else {
				fmt.Println(key)
			}
			return nil
		},
	}
}

// expiringCmd は満了予定の契約一覧を取得するコマンド。
func expiringCmd() *cobra.Command {
	var tenantID string
	var days int
	cmd := &cobra.Command{
		Use:   "expiring",
		Short: "List contracts expiring within the given days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" {
				return fmt.Errorf("--tenant is required")
			}
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set PORTALCTL_API_URL)")
			}

			url := fmt.Sprintf("%s/v1/tenants/%s/contracts/expiring?days=%d", apiURL, tenantID, days)
			resp, err := httpClient.Get(url)
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}

			if resp.StatusCode != http.StatusOK {
				return handleErrorResponse(resp.StatusCode, body)
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Contracts []struct {
						ID      string `json:"id"`
						Title   string `json:"title"`
						PartyB  string `json:"party_b"`
						EndDate string `json:"end_date"`
						Status  string `json:"status"`
					} `json:"contracts"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}

				fmt.Printf("%-36s %-30s %-20s %-12s %s\n", "ID", "TITLE", "PARTY_B", "END_DATE", "STATUS")
				for _, c := range result.Contracts {
					fmt.Printf("%-36s %-30s %-20s %-12s %s\n", c.ID, c.Title, c.PartyB, c.EndDate, c.Status)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.Flags().IntVar(&days, "days", 30, "Window in days")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

// dashboardCmd は契約統計を取得するコマンド。
func dashboardCmd() *cobra.Command {
	var tenantID string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show contract statistics for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" {
				return fmt.Errorf("--tenant is required")
			}
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set PORTALCTL_API_URL)")
			}

			url := fmt.Sprintf("%s/v1/tenants/%s/contracts/dashboard", apiURL, tenantID)
			resp, err := httpClient.Get(url)
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}

			if resp.StatusCode != http.StatusOK {
				return handleErrorResponse(resp.StatusCode, body)
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Total    int64 `json:"total"`
					ByStatus []struct {
						Status string `json:"status"`
						Count  int64  `json:"count"`
					} `json:"by_status"`
					ExpiringIn30 int `json:"expiring_in_30_days"`
					ExpiringIn7  int `json:"expiring_in_7_days"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}

				fmt.Printf("Total contracts: %d\n", result.Total)
				for _, s := range result.ByStatus {
					fmt.Printf("  %-12s %d\n", s.Status, s.Count)
				}
				fmt.Printf("Expiring in 30 days: %d\n", result.ExpiringIn30)
				fmt.Printf("Expiring in 7 days:  %d\n", result.ExpiringIn7)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (required)")
	cmd.MarkFlagRequired("tenant")
	return cmd
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("Error: %s", errResp.Message)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
