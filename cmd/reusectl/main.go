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

	"reuse-detector/internal/infra/httpclient"
)

var (
	version = "dev"

	// Global flags
	serverURL string
	ownerID   string
	timeout   int

	// Scan flags
	maxResults int
	withDiag   bool
	targetIDs  []string
	stage0TopK int
	threshold  float64
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "reusectl",
	Short:   "Query the reuse detector service",
	Version: version,
}

var scanCmd = &cobra.Command{
	Use:   "scan <document-id>",
	Short: "Find documents reusing content from a source document",
	Long: `Run a similarity scan for a source document against a running
reuse-detector server and print a ranked summary.

Examples:
  # Scan with server defaults
  reusectl scan 4f7c... --owner tenant-1

  # Constrain the scan to specific targets
  reusectl scan 4f7c... --owner tenant-1 --target 9a1b... --target c2d3...

  # Include per-candidate drop diagnostics
  reusectl scan 4f7c... --owner tenant-1 --diagnostics`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var validateCmd = &cobra.Command{
	Use:   "validate <document-id>",
	Short: "Check whether a document is ready for similarity search",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9020", "reuse-detector server URL")
	rootCmd.PersistentFlags().StringVar(&ownerID, "owner", "", "owner/tenant ID for scoping")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 120, "request timeout in seconds")

	scanCmd.Flags().IntVar(&maxResults, "max-results", 20, "maximum results to return")
	scanCmd.Flags().BoolVar(&withDiag, "diagnostics", false, "include per-candidate drop diagnostics")
	scanCmd.Flags().StringArrayVar(&targetIDs, "target", nil, "restrict the scan to these target document IDs (repeatable)")
	scanCmd.Flags().IntVar(&stage0TopK, "stage0-topk", 0, "override stage0 candidate count")
	scanCmd.Flags().Float64Var(&threshold, "threshold", 0, "override stage2 acceptance threshold")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(validateCmd)
}

type scanRequest struct {
	SourceDocumentID   string   `json:"source_document_id"`
	OwnerID            string   `json:"owner_id"`
	MaxResults         int      `json:"max_results,omitempty"`
	IncludeDiagnostics bool     `json:"include_diagnostics,omitempty"`
	TargetDocumentIDs  []string `json:"target_document_ids,omitempty"`
	Stage0TopK         *int     `json:"stage0_topk,omitempty"`
	Stage2Threshold    *float64 `json:"stage2_fallback_threshold,omitempty"`
}

type scanResponse struct {
	SearchID string `json:"search_id"`
	Results  []struct {
		Document struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"document"`
		Scores struct {
			SourceScore  float64 `json:"source_score"`
			TargetScore  float64 `json:"target_score"`
			OverlapScore float64 `json:"overlap_score"`
		} `json:"scores"`
		MatchedSourceTokens int `json:"matched_source_tokens"`
		Sections            []struct {
			SourcePages struct {
				StartPage int `json:"start_page"`
				EndPage   int `json:"end_page"`
			} `json:"source_pages"`
			AvgScore float64 `json:"avg_score"`
			Reusable bool    `json:"reusable"`
		} `json:"sections"`
	} `json:"results"`
	Stages struct {
		Stage0Candidates int  `json:"stage0_candidates"`
		Stage1Candidates int  `json:"stage1_candidates"`
		Stage1Skipped    bool `json:"stage1_skipped"`
		FinalResults     int  `json:"final_results"`
	} `json:"stages"`
	Timing struct {
		TotalMs int64 `json:"total_ms"`
	} `json:"timing"`
}

func runScan(cmd *cobra.Command, args []string) error {
	if ownerID == "" {
		return fmt.Errorf("--owner is required")
	}

	req := scanRequest{
		SourceDocumentID:   args[0],
		OwnerID:            ownerID,
		MaxResults:         maxResults,
		IncludeDiagnostics: withDiag,
		TargetDocumentIDs:  targetIDs,
	}
	if stage0TopK > 0 {
		req.Stage0TopK = &stage0TopK
	}
	if threshold > 0 {
		req.Stage2Threshold = &threshold
	}

	var resp scanResponse
	if err := post("/v1/similarity/search", req, &resp); err != nil {
		return err
	}

	fmt.Printf("search %s: %d/%d candidates survived stage1 (skipped=%v), %d results in %dms\n",
		resp.SearchID, resp.Stages.Stage1Candidates, resp.Stages.Stage0Candidates,
		resp.Stages.Stage1Skipped, resp.Stages.FinalResults, resp.Timing.TotalMs)

	for i, r := range resp.Results {
		fmt.Printf("%2d. %-40.40s  source=%.3f target=%.3f overlap=%.3f tokens=%d\n",
			i+1, r.Document.Title, r.Scores.SourceScore, r.Scores.TargetScore,
			r.Scores.OverlapScore, r.MatchedSourceTokens)
		for _, s := range r.Sections {
			marker := " "
			if s.Reusable {
				marker = "*"
			}
			fmt.Printf("    %s pages %d-%d  avg=%.3f\n", marker, s.SourcePages.StartPage, s.SourcePages.EndPage, s.AvgScore)
		}
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	var report struct {
		Valid    bool     `json:"valid"`
		Errors   []string `json:"errors"`
		Warnings []string `json:"warnings"`
	}
	if err := post("/v1/similarity/validate", map[string]string{"document_id": args[0]}, &report); err != nil {
		return err
	}

	if report.Valid {
		fmt.Println("document is ready for similarity search")
	} else {
		fmt.Println("document is NOT ready:")
		for _, e := range report.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	return nil
}

func post(path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	client := httpclient.NewPooledClient(time.Duration(timeout) * time.Second)
	resp, err := client.Post(serverURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, out)
}
