// pickerctl is a CLI tool for driving product picker flows against the
// REST API. Each command performs a single operation, making it composable
// for scripts.
//
// Commands:
//
//	pickerctl create -server URL [-product ID -variants ID,ID -price P]
//	pickerctl get -server URL -widget ID
//	pickerctl open -server URL -widget ID
//	pickerctl search -server URL -session ID -text TEXT [-wait]
//	pickerctl next -server URL -session ID
//	pickerctl toggle -server URL -session ID -product ID [-variant ID]
//	pickerctl commit -server URL -session ID
//	pickerctl cancel -server URL -session ID
//
// Examples:
//
//	W=$(pickerctl create -server http://localhost:8080 -q)
//	S=$(pickerctl open -server http://localhost:8080 -widget $W -q)
//	pickerctl search -server http://localhost:8080 -session $S -text shirt
//	pickerctl next -server http://localhost:8080 -session $S
//	pickerctl toggle -server http://localhost:8080 -session $S -product 101
//	pickerctl commit -server http://localhost:8080 -session $S
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
)

// clientVersion is announced in the Picker-Client header.
const clientVersion = "1.0.0"

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorBlue, colorCyan, colorGray, colorBold = "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "create":
		runCreate(args)
	case "get":
		runGet(args)
	case "open":
		runOpen(args)
	case "search":
		runSearch(args)
	case "next":
		runNext(args)
	case "toggle":
		runToggle(args)
	case "commit":
		runCommit(args)
	case "cancel":
		runCancel(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `pickerctl - product picker flow tool

Usage:
  pickerctl <command> [options]

Commands:
  create    Create a widget, optionally seeded with one product
  get       Show a widget's selection list
  open      Open a picker session on a widget
  search    Set the search text of a session
  next      Load the next page of results
  toggle    Toggle a product or a single variant
  commit    Commit the session selection to its widget
  cancel    Discard a session

Examples:
  # Create widget and capture ID
  W=$(pickerctl create -server http://localhost:8080 -q)

  # Open a picker and capture the session ID
  S=$(pickerctl open -server http://localhost:8080 -widget "$W" -q)

  # Search and load the first page
  pickerctl search -server http://localhost:8080 -session "$S" -text shirt
  pickerctl next -server http://localhost:8080 -session "$S"

  # Select a product and commit
  pickerctl toggle -server http://localhost:8080 -session "$S" -product 101
  pickerctl commit -server http://localhost:8080 -session "$S"

Run 'pickerctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags shared by every command.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", "http://localhost:8080", "Product picker base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the resulting ID or state")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pickerctl %s %s [options]\n\nOptions:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

func required(fs *flag.FlagSet, values ...string) {
	for _, v := range values {
		if v == "" {
			fs.Usage()
			os.Exit(1)
		}
	}
}

// =============================================================================
// WIDGET COMMANDS
// =============================================================================

func runCreate(args []string) {
	fs := newFlagSet("create", "")
	var productID, title, variants, price string
	fs.StringVar(&productID, "product", "", "Seed the list with this product ID")
	fs.StringVar(&title, "title", "", "Title of the seeded product")
	fs.StringVar(&variants, "variants", "", "Comma-separated variant IDs of the seeded product")
	fs.StringVar(&price, "price", "0", "Price of each seeded variant")
	parse(fs, args)

	reqBody := map[string]interface{}{"entries": []interface{}{}}
	if productID != "" {
		vs := []map[string]interface{}{}
		for _, id := range splitList(variants) {
			vs = append(vs, map[string]interface{}{
				"id":         id,
				"product_id": productID,
				"price":      price,
			})
		}
		reqBody["entries"] = []map[string]interface{}{
			{"id": productID, "title": title, "variants": vs},
		}
	}

	resp, err := doRequest("POST", "/widgets", reqBody)
	if err != nil {
		fatal("Failed to create widget: %v", err)
	}

	widgetID, _ := resp["id"].(string)
	if quiet {
		fmt.Println(widgetID)
	} else {
		printSuccess("Widget created")
		fmt.Printf("  ID: %s%s%s\n", colorCyan, widgetID, colorReset)
	}
}

func runGet(args []string) {
	fs := newFlagSet("get", "-widget ID")
	var widgetID string
	fs.StringVar(&widgetID, "widget", "", "Widget ID (required)")
	parse(fs, args)
	required(fs, widgetID)

	resp, err := doRequest("GET", "/widgets/"+url.PathEscape(widgetID), nil)
	if err != nil {
		fatal("Failed to get widget: %v", err)
	}
	printEntries(resp)
}

// =============================================================================
// PICKER COMMANDS
// =============================================================================

func runOpen(args []string) {
	fs := newFlagSet("open", "-widget ID")
	var widgetID string
	fs.StringVar(&widgetID, "widget", "", "Widget ID (required)")
	parse(fs, args)
	required(fs, widgetID)

	resp, err := doRequest("POST", "/widgets/"+url.PathEscape(widgetID)+"/picker", nil)
	if err != nil {
		fatal("Failed to open picker: %v", err)
	}

	sessionID, _ := resp["session_id"].(string)
	if quiet {
		fmt.Println(sessionID)
	} else {
		printSuccess("Picker opened")
		fmt.Printf("  Session: %s%s%s\n", colorCyan, sessionID, colorReset)
		printSelectedCount(resp)
	}
}

func runSearch(args []string) {
	fs := newFlagSet("search", "-session ID -text TEXT")
	var sessionID, text string
	var wait bool
	fs.StringVar(&sessionID, "session", "", "Picker session ID (required)")
	fs.StringVar(&text, "text", "", "Search text; empty lists all products")
	fs.BoolVar(&wait, "wait", false, "Let the debounce window elapse instead of committing the query immediately")
	parse(fs, args)
	required(fs, sessionID)

	path := "/picker/" + url.PathEscape(sessionID) + "/search"
	if !wait {
		path += "?flush=true"
	}
	resp, err := doRequest("PUT", path, map[string]string{"text": text})
	if err != nil {
		fatal("Failed to search: %v", err)
	}

	state, _ := resp["state"].(string)
	if quiet {
		fmt.Println(state)
		return
	}
	debounced, _ := resp["debounced_text"].(string)
	printSuccess("Search set (%s)", state)
	fmt.Printf("  Query: %s%q%s\n", colorCyan, debounced, colorReset)
}

func runNext(args []string) {
	fs := newFlagSet("next", "-session ID")
	var sessionID string
	fs.StringVar(&sessionID, "session", "", "Picker session ID (required)")
	parse(fs, args)
	required(fs, sessionID)

	resp, err := doRequest("POST", "/picker/"+url.PathEscape(sessionID)+"/next", nil)
	if err != nil {
		fatal("Failed to load next page: %v", err)
	}

	outcome, _ := resp["outcome"].(string)
	if quiet {
		fmt.Println(outcome)
		return
	}
	switch outcome {
	case "appended":
		printSuccess("Page loaded")
	case "exhausted":
		printWarning("No more results")
	default:
		printInfo("Outcome: %s", outcome)
	}
	printResults(resp)
}

func runToggle(args []string) {
	fs := newFlagSet("toggle", "-session ID -product ID")
	var sessionID, productID, variantID string
	fs.StringVar(&sessionID, "session", "", "Picker session ID (required)")
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.StringVar(&variantID, "variant", "", "Toggle only this variant")
	parse(fs, args)
	required(fs, sessionID, productID)

	path := "/picker/" + url.PathEscape(sessionID) + "/products/" + url.PathEscape(productID)
	if variantID != "" {
		path += "/variants/" + url.PathEscape(variantID)
	}
	resp, err := doRequest("POST", path+"/toggle", nil)
	if err != nil {
		fatal("Failed to toggle: %v", err)
	}

	if quiet {
		fmt.Println(checkOf(resp, productID))
		return
	}
	printSuccess("Product %s is %s", productID, checkOf(resp, productID))
	printSelectedCount(resp)
}

func runCommit(args []string) {
	fs := newFlagSet("commit", "-session ID")
	var sessionID string
	fs.StringVar(&sessionID, "session", "", "Picker session ID (required)")
	parse(fs, args)
	required(fs, sessionID)

	resp, err := doRequest("POST", "/picker/"+url.PathEscape(sessionID)+"/commit", nil)
	if err != nil {
		fatal("Failed to commit: %v", err)
	}

	widgetID, _ := resp["id"].(string)
	if quiet {
		fmt.Println(widgetID)
		return
	}
	printSuccess("Selection committed to widget %s", widgetID)
	printEntries(resp)
}

func runCancel(args []string) {
	fs := newFlagSet("cancel", "-session ID")
	var sessionID string
	fs.StringVar(&sessionID, "session", "", "Picker session ID (required)")
	parse(fs, args)
	required(fs, sessionID)

	if _, err := doRequest("DELETE", "/picker/"+url.PathEscape(sessionID), nil); err != nil {
		fatal("Failed to cancel: %v", err)
	}
	printSuccess("Picker cancelled")
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	reqURL := serverURL + path
	req, err := http.NewRequest(method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	header, err := pickerClientHeader()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Picker-Client", header)

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet {
		printResponse(resp.StatusCode, respBody, duration)
		if page := resp.Header.Get("Picker-Page"); page != "" {
			printInfo("Picker-Page: %s", page)
		}
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	result := map[string]interface{}{}
	if len(respBody) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return result, nil
}

// pickerClientHeader serializes the Picker-Client dictionary for this tool.
func pickerClientHeader() (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("name", httpsfv.NewItem("pickerctl"))
	dict.Add("version", httpsfv.NewItem(clientVersion))
	s, err := httpsfv.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("encoding Picker-Client header: %w", err)
	}
	return s, nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	if len(body) > 0 {
		printJSON(body, "  ")
	}
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}

	output := pretty.String()
	if !verbose {
		lines := strings.Split(output, "\n")
		if len(lines) > 30 {
			lines = append(lines[:25], fmt.Sprintf("%s  %s(%d more lines, use -v for full output)%s", prefix, colorGray, len(lines)-25, colorReset))
			output = strings.Join(lines, "\n")
		}
	}
	fmt.Println(output)
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s· %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

// printResults lists the accumulated search results with their check state.
func printResults(resp map[string]interface{}) {
	results, _ := resp["results"].([]interface{})
	for _, r := range results {
		row, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := row["id"].(string)
		title, _ := row["title"].(string)
		check, _ := row["check"].(string)
		fmt.Printf("  %s[%s]%s %s%s%s %s\n", colorGray, checkMark(check), colorReset, colorCyan, id, colorReset, title)
	}
	if more, _ := resp["has_more"].(bool); more {
		printInfo("More results available")
	}
}

// printEntries lists the entries of a widget response.
func printEntries(resp map[string]interface{}) {
	entries, _ := resp["entries"].([]interface{})
	if len(entries) == 0 {
		printInfo("Selection list is empty")
		return
	}
	for _, e := range entries {
		entry, ok := e.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := entry["id"].(string)
		title, _ := entry["title"].(string)
		variants, _ := entry["variants"].([]interface{})
		fmt.Printf("  %s%s%s %s (%d variants)\n", colorCyan, id, colorReset, title, len(variants))
	}
}

func printSelectedCount(resp map[string]interface{}) {
	if n, ok := resp["selected_count"].(float64); ok {
		fmt.Printf("  Selected: %s%d%s\n", colorBold, int(n), colorReset)
	}
}

// checkOf finds the check state of productID in a snapshot response.
func checkOf(resp map[string]interface{}, productID string) string {
	results, _ := resp["results"].([]interface{})
	for _, r := range results {
		row, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		if id, _ := row["id"].(string); id == productID {
			check, _ := row["check"].(string)
			return check
		}
	}
	return "unknown"
}

func checkMark(check string) string {
	switch check {
	case "checked":
		return "x"
	case "indeterminate":
		return "-"
	default:
		return " "
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
