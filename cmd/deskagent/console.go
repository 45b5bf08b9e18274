package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"deskagent/internal/agent"
	"deskagent/internal/config"
	"deskagent/internal/logging"
	"deskagent/internal/mcp"
	"deskagent/internal/project"
)

// console is the terminal host for agent runs. It satisfies the
// project.Project contract against stdin and stdout.
type console struct {
	baseDir string

	mu           sync.Mutex
	settings     *config.Settings
	contextFiles []project.ContextFile
	history      []*genai.Content
	totalCost    float64

	// printed tracks how much of each streamed message has been
	// written, so chunks print as deltas.
	printed    map[string]int
	lastAnswer string

	reader *bufio.Reader
	out    io.Writer
}

func newConsole(baseDir string, settings *config.Settings) *console {
	return &console{
		baseDir:  baseDir,
		settings: settings,
		printed:  map[string]int{},
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
	}
}

func (c *console) BaseDir() string { return c.baseDir }

func (c *console) Settings() *config.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

func (c *console) replaceSettings(settings *config.Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = settings
}

func (c *console) ContextFiles() []project.ContextFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]project.ContextFile(nil), c.contextFiles...)
}

func (c *console) AddContextFile(file project.ContextFile) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.contextFiles {
		if existing.Path == file.Path {
			return false, nil
		}
	}
	c.contextFiles = append(c.contextFiles, file)
	return true, nil
}

func (c *console) DropContextFile(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.contextFiles {
		if existing.Path == path {
			c.contextFiles = append(c.contextFiles[:i], c.contextFiles[i+1:]...)
			return
		}
	}
}

func (c *console) ContextMessages() []*genai.Content {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*genai.Content(nil), c.history...)
}

func (c *console) RepoMap() string { return "" }

func (c *console) AddToolMessage(msg project.ToolMessage) {
	if msg.Result == "" {
		fmt.Fprintf(c.out, "\n⚙ %s/%s ...\n", msg.ServerName, msg.ToolName)
		return
	}
	result := msg.Result
	if len(result) > 400 {
		result = result[:400] + "…"
	}
	fmt.Fprintf(c.out, "⚙ %s/%s → %s\n", msg.ServerName, msg.ToolName, result)
}

func (c *console) AskQuestion(ctx context.Context, q project.Question) (project.Answer, error) {
	fmt.Fprintf(c.out, "\n? %s\n", q.Text)
	if q.Subject != "" {
		fmt.Fprintf(c.out, "%s\n", q.Subject)
	}

	def := q.DefaultAnswer
	if def == "" {
		def = "y"
	}
	fmt.Fprintf(c.out, "[y]es / [n]o / [a]lways / [r]emember for run (default %s): ", def)

	line, err := c.reader.ReadString('\n')
	if err != nil {
		return project.Answer{}, err
	}
	line = strings.TrimSpace(line)

	switch strings.ToLower(line) {
	case "":
		return project.Answer{Answer: def}, nil
	case "y", "n", "a", "r":
		return project.Answer{Answer: strings.ToLower(line)}, nil
	default:
		// Free text declines and carries the feedback to the model
		return project.Answer{Answer: "n", Input: line}, nil
	}
}

func (c *console) ProcessResponseMessage(msg project.ResponseMessage) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !msg.Finished {
		done := c.printed[msg.ID]
		if len(msg.Content) > done {
			fmt.Fprint(c.out, msg.Content[done:])
			c.printed[msg.ID] = len(msg.Content)
		}
		return msg.ID
	}

	delete(c.printed, msg.ID)
	if msg.Content != "" {
		c.lastAnswer = msg.Content
		fmt.Fprintln(c.out)
	}
	if msg.Usage != nil {
		fmt.Fprintf(c.out, "· %d sent, %d received, $%.4f this step, $%.4f total\n",
			msg.Usage.SentTokens, msg.Usage.ReceivedTokens, msg.Usage.MessageCost, msg.Usage.TotalCost)
	}
	return msg.ID
}

func (c *console) AddLogMessage(level, text string) {
	if level == "loading" {
		return
	}
	fmt.Fprintf(c.out, "[%s] %s\n", level, text)
}

func (c *console) SendPrompt(ctx context.Context, prompt string, clearContext bool) ([]project.PromptResponse, error) {
	return nil, errors.New("no pair programming bridge is configured for the console host")
}

func (c *console) TotalCost() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCost
}

func (c *console) AddCost(cost float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalCost += cost
}

// recordExchange folds a completed run into the conversation history.
func (c *console) recordExchange(prompt string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastAnswer == "" {
		return
	}
	c.history = append(c.history,
		genai.NewContentFromText(prompt, genai.RoleUser),
		genai.NewContentFromText(c.lastAnswer, genai.RoleModel))
	c.lastAnswer = ""
}

func (c *console) clearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

func runConsole(cmd *cobra.Command, args []string) error {
	settings, cfgPath, err := loadSettings()
	if err != nil {
		return err
	}
	configureLogging(settings)
	defer logging.Close()

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	host := newConsole(workDir, settings)

	manager := mcp.NewManager(workDir)
	defer manager.Shutdown()

	runner := agent.NewRunner(host, manager)

	// Config edits take effect on the next run
	watcher, err := config.NewWatcher(cfgPath, func(updated *config.Settings) {
		previous := host.Settings()
		host.replaceSettings(updated)
		runner.SettingsChanged(previous, updated)
		fmt.Fprintln(host.out, "[info] configuration reloaded")
	})
	if err != nil {
		logging.Warn("config watcher unavailable", "error", err)
	} else {
		defer watcher.Stop()
	}

	// First interrupt stops the active run, a second one exits
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if runner.IsRunning() {
				fmt.Fprintln(host.out, "\n[info] interrupting run")
				runner.Interrupt()
				continue
			}
			os.Exit(0)
		}
	}()

	fmt.Fprintf(host.out, "deskagent %s · %s\nType a prompt, or /help for commands.\n", version, workDir)

	for {
		fmt.Fprint(host.out, "\n> ")
		line, err := host.reader.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := host.handleCommand(line); quit {
				return nil
			}
			continue
		}

		if err := runner.Run(cmd.Context(), line); err != nil {
			if errors.Is(err, agent.ErrRunInProgress) {
				fmt.Fprintln(host.out, "[warning] a run is already in progress")
				continue
			}
			fmt.Fprintf(host.out, "[error] %s\n", err)
			continue
		}
		host.recordExchange(line)
	}
}

func (c *console) handleCommand(line string) (quit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprint(c.out, `/add <path> [ro]  add a file to the context (ro marks it read only)
/drop <path>      remove a file from the context
/files            list context files
/clear            clear the conversation history
/cost             show the accumulated cost
/quit             exit
`)
	case "/add":
		if len(fields) < 2 {
			fmt.Fprintln(c.out, "usage: /add <path> [ro]")
			break
		}
		readOnly := len(fields) > 2 && fields[2] == "ro"
		added, err := c.AddContextFile(project.ContextFile{Path: fields[1], ReadOnly: readOnly})
		switch {
		case err != nil:
			fmt.Fprintf(c.out, "[error] %s\n", err)
		case !added:
			fmt.Fprintf(c.out, "%s is already in the context\n", fields[1])
		default:
			fmt.Fprintf(c.out, "added %s\n", fields[1])
		}
	case "/drop":
		if len(fields) < 2 {
			fmt.Fprintln(c.out, "usage: /drop <path>")
			break
		}
		c.DropContextFile(fields[1])
		fmt.Fprintf(c.out, "dropped %s\n", fields[1])
	case "/files":
		files := c.ContextFiles()
		if len(files) == 0 {
			fmt.Fprintln(c.out, "no files in context")
			break
		}
		for _, f := range files {
			marker := "rw"
			if f.ReadOnly {
				marker = "ro"
			}
			fmt.Fprintf(c.out, "%s  %s\n", marker, f.Path)
		}
	case "/clear":
		c.clearHistory()
		fmt.Fprintln(c.out, "history cleared")
	case "/cost":
		fmt.Fprintf(c.out, "total cost: $%.4f\n", c.TotalCost())
	default:
		fmt.Fprintf(c.out, "unknown command %s, try /help\n", fields[0])
	}
	return false
}
