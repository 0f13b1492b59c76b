package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/config"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View gateway logs",
	Long: `View and filter the gateway log file.

Logs are only written to a file when logging.dir is configured; otherwise
the server logs to stderr and this command has nothing to read.

Examples:
  # Show the last 50 lines
  mcp-gateway logs

  # Follow logs in real-time
  mcp-gateway logs -f

  # Only warnings and errors for one conversation
  mcp-gateway logs --level warn --conversation conv-42

  # Show logs from the last hour matching a pattern
  mcp-gateway logs --since 1h --grep "conflict|timeout"`,
	RunE: runLogs,
}

var (
	logsTail         int
	logsFollow       bool
	logsLevel        string
	logsSince        string
	logsGrep         string
	logsConversation string
	logsSession      string
	logsComponent    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsConversation, "conversation", "", "Only entries for this conversation")
	logsCmd.Flags().StringVarP(&logsSession, "session", "s", "", "Only entries for this session")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Only entries from this component (e.g. contextsync)")
}

// logEntry represents a parsed JSON log line
type logEntry struct {
	Time           time.Time      `json:"time"`
	Level          string         `json:"level"`
	Msg            string         `json:"msg"`
	Component      string         `json:"component,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	OperationID    string         `json:"operation_id,omitempty"`
	Extra          map[string]any `json:"-"`
}

// UnmarshalJSON captures fields without a struct field in Extra.
func (e *logEntry) UnmarshalJSON(data []byte) error {
	type alias logEntry
	if err := json.Unmarshal(data, (*alias)(e)); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range []string{"time", "level", "msg", "component", "conversation_id", "session_id", "operation_id"} {
		delete(all, k)
	}
	if len(all) > 0 {
		e.Extra = all
	}
	return nil
}

// logFilter holds the parsed filter flags.
type logFilter struct {
	minLevel     int
	since        time.Time
	grep         *regexp.Regexp
	conversation string
	session      string
	component    string
}

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// levelColor returns the ANSI color code for a log level
func levelColor(level string) string {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return colorGray
	case logging.LevelInfo:
		return colorBlue
	case logging.LevelWarn:
		return colorYellow
	case logging.LevelError:
		return colorRed
	default:
		return colorReset
	}
}

// levelPriority returns the priority of a log level for filtering
func levelPriority(level string) int {
	switch strings.ToUpper(level) {
	case logging.LevelDebug:
		return 0
	case logging.LevelInfo:
		return 1
	case logging.LevelWarn:
		return 2
	case logging.LevelError:
		return 3
	default:
		return -1
	}
}

// formatLogEntry formats a log entry for terminal output
func formatLogEntry(entry *logEntry) string {
	var sb strings.Builder

	sb.WriteString(colorGray + "[" + entry.Time.Format("15:04:05.000") + "]" + colorReset)
	sb.WriteString(" " + levelColor(entry.Level) + "[" + strings.ToUpper(entry.Level) + "]" + colorReset)
	if entry.Component != "" {
		sb.WriteString(" " + colorGray + entry.Component + colorReset)
	}
	sb.WriteString(" " + entry.Msg)

	for _, f := range []struct{ key, value string }{
		{"conversation_id", entry.ConversationID},
		{"session_id", entry.SessionID},
		{"operation_id", entry.OperationID},
	} {
		if f.value != "" {
			sb.WriteString(" " + colorCyan + f.key + "=" + f.value + colorReset)
		}
	}

	for _, key := range slices.Sorted(maps.Keys(entry.Extra)) {
		fmt.Fprintf(&sb, " %s%s=%s%v", colorCyan, key, colorReset, entry.Extra[key])
	}

	return sb.String()
}

func runLogs(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg := config.Get()
	if cfg.Logging.Dir == "" {
		fmt.Fprintln(out, "logging.dir is not set; the gateway logs to stderr.")
		fmt.Fprintln(out, "Run 'mcp-gateway config set logging.dir <dir>' to keep a log file.")
		return nil
	}

	logPath := filepath.Join(cfg.Logging.Dir, logging.FileName)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "No logs found.")
		fmt.Fprintln(out, "Logs are stored at:", logPath)
		return nil
	}

	filter, err := parseLogFilter()
	if err != nil {
		return err
	}

	if logsFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return followLogs(ctx, out, logPath, filter)
	}
	return displayLogs(out, logPath, logsTail, filter)
}

func parseLogFilter() (logFilter, error) {
	f := logFilter{
		minLevel:     -1,
		conversation: logsConversation,
		session:      logsSession,
		component:    logsComponent,
	}
	if logsLevel != "" {
		f.minLevel = levelPriority(logging.ParseLevel(logsLevel))
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return f, fmt.Errorf("invalid duration format: %w", err)
		}
		f.since = time.Now().Add(-d)
	}
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return f, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.grep = re
	}
	return f, nil
}

// displayLogs reads the log file and displays filtered entries
func displayLogs(out io.Writer, logPath string, tail int, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)

	// Increase buffer size for potentially long log lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if s, ok := renderLine(line, filter); ok {
			entries = append(entries, s)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}

	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	for _, entry := range entries {
		fmt.Fprintln(out, entry)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
	}
	return nil
}

// followLogs implements tail -f behavior until ctx is canceled.
func followLogs(ctx context.Context, out io.Writer, logPath string, filter logFilter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(out, "Following logs... (Ctrl+C to stop)\n\n")

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				continue
			}
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s, ok := renderLine(line, filter); ok {
			fmt.Fprintln(out, s)
		}
	}
}

// renderLine parses and filters one line. Lines that are not JSON are
// passed through unfiltered.
func renderLine(line string, filter logFilter) (string, bool) {
	var entry logEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return line, true
	}
	if !passesFilters(&entry, filter) {
		return "", false
	}
	return formatLogEntry(&entry), true
}

// passesFilters checks if a log entry passes all filter criteria
func passesFilters(entry *logEntry, f logFilter) bool {
	if f.minLevel >= 0 && levelPriority(entry.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && entry.Time.Before(f.since) {
		return false
	}
	if f.conversation != "" && entry.ConversationID != f.conversation {
		return false
	}
	if f.session != "" && entry.SessionID != f.session {
		return false
	}
	if f.component != "" && entry.Component != f.component {
		return false
	}

	// Grep searches the message and extra fields
	if f.grep != nil {
		searchText := entry.Msg
		for _, v := range entry.Extra {
			searchText += " " + fmt.Sprintf("%v", v)
		}
		if !f.grep.MatchString(searchText) {
			return false
		}
	}
	return true
}
