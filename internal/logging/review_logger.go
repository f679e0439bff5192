package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ReviewLogger records one job's full pipeline trace to a dedicated file
// under review_logs/, with elapsed-time-stamped lines. It doubles as the
// place where full prompts and responses land, which are too large for the
// structured log.
type ReviewLogger struct {
	requestID string
	logFile   *os.File
	mu        sync.Mutex
	startTime time.Time
}

// StartReviewLogging opens a log file for the given request.
func StartReviewLogging(requestID string) (*ReviewLogger, error) {
	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join("review_logs", fmt.Sprintf("review_%s_%s.log", requestID, timestamp))

	if err := os.MkdirAll("review_logs", 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	r := &ReviewLogger{
		requestID: requestID,
		logFile:   logFile,
		startTime: time.Now(),
	}
	r.writeHeader()
	return r, nil
}

// Log appends a formatted line with wall-clock and elapsed timestamps.
func (r *ReviewLogger) Log(format string, args ...interface{}) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	elapsed := time.Since(r.startTime).Round(time.Millisecond)
	fmt.Fprintf(r.logFile, "[%s] [+%v] %s\n", timestamp, elapsed, fmt.Sprintf(format, args...))
	r.logFile.Sync()
}

// LogSection writes a visual section separator.
func (r *ReviewLogger) LogSection(title string) {
	if r == nil {
		return
	}
	sep := "================================================================================"
	r.Log(sep)
	r.Log("= %s", title)
	r.Log(sep)
}

// LogPrompt records the full prompt sent to the model.
func (r *ReviewLogger) LogPrompt(model, prompt string) {
	if r == nil {
		return
	}
	r.LogSection("LLM REQUEST")
	r.Log("Model: %s", model)
	r.Log("Prompt length: %d characters", len(prompt))
	r.mu.Lock()
	r.logFile.WriteString(prompt + "\n")
	r.mu.Unlock()
}

// LogResponse records the full raw model output.
func (r *ReviewLogger) LogResponse(response string) {
	if r == nil {
		return
	}
	r.LogSection("LLM RESPONSE")
	r.Log("Response length: %d characters", len(response))
	r.mu.Lock()
	r.logFile.WriteString(response + "\n")
	r.mu.Unlock()
}

// LogError records a failure with its context.
func (r *ReviewLogger) LogError(context string, err error) {
	if r == nil {
		return
	}
	r.Log("ERROR in %s: %v", context, err)
}

// Close finalises the log file.
func (r *ReviewLogger) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logFile == nil {
		return
	}
	fmt.Fprintf(r.logFile, "Review logging completed. Total duration: %v\n", time.Since(r.startTime))
	if err := r.logFile.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close review log")
	}
	r.logFile = nil
}

func (r *ReviewLogger) writeHeader() {
	fmt.Fprintf(r.logFile, "REVIEWSTREAM PIPELINE LOG\nRequest ID: %s\nStart Time: %s\n\n",
		r.requestID, r.startTime.Format("2006-01-02 15:04:05"))
	r.logFile.Sync()
}
