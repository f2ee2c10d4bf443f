package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msageha/agentsync/internal/events"
	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
	"github.com/msageha/agentsync/internal/notify"
	"github.com/msageha/agentsync/internal/session"
)

type connectOptions struct {
	Network string
	Address string
	Task    string
	Trace   bool
}

func newConnectCmd(global *globalOptions) *cobra.Command {
	var options connectOptions

	cmd := &cobra.Command{
		Use:   "connect [flags]",
		Short: "Connect to the agent backend and chat from the terminal",
		Example: `  # Connect using agentsync.yaml
  agentsync connect

  # Connect over tcp and open an existing task
  agentsync connect --network tcp --address 127.0.0.1:7400 --task T42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global.ConfigPath, global)
			if err != nil {
				return err
			}
			if options.Network != "" {
				cfg.Transport.Network = options.Network
			}
			if options.Address != "" {
				cfg.Transport.Address = options.Address
			}
			if options.Trace {
				cfg.Trace.Enabled = true
			}
			return runConnect(cmd.Context(), cfg, options.Task, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&options.Network, "network", "", "override transport.network (unix or tcp)")
	cmd.Flags().StringVar(&options.Address, "address", "", "override transport.address")
	cmd.Flags().StringVar(&options.Task, "task", "", "task to open on connect")
	cmd.Flags().BoolVar(&options.Trace, "trace", false, "journal every envelope to trace.path")
	return cmd
}

func runConnect(ctx context.Context, cfg model.Config, task string, in io.Reader, out io.Writer) error {
	logger, closer, err := logging.Open(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	var journal *events.Journal
	if cfg.Trace.Enabled {
		journal, err = events.OpenJournal(cfg.Trace, "")
		if err != nil {
			return err
		}
	}

	notifier := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.Notify.Enabled {
		notifier = append(notifier, notify.NewDesktop())
	}

	sess, err := session.New(session.Options{
		Config:   cfg,
		Notifier: notifier,
		Journal:  journal,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	conn, err := sess.Dial(ctx)
	if err != nil {
		return err
	}

	p := newPrinter(out, sess.Store(), sess.Expanded())
	unsubscribe := sess.Bus().Subscribe(p.onEvent)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if task != "" {
			if err := sess.Navigate(ctx, task); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
		}
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if err := execLine(ctx, sess, p, scanner.Text()); err != nil {
				if errors.Is(err, errQuit) {
					break
				}
				fmt.Fprintf(out, "! %v\n", err)
			}
		}
		cancel()
	}()

	fmt.Fprintf(out, "connected to %s://%s (type /help)\n", cfg.Transport.Network, cfg.Transport.Address)
	if err := sess.Run(ctx, conn); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Fprintln(out, "disconnected")
	return nil
}

var errQuit = errors.New("quit")

const helpText = `commands:
  <text>                   send to the current task
  /new <message>           create a task
  /task <id>               open a task
  /tasks                   list known tasks
  /sub <subtask-id> <msg>  delegate to a subtask of the current task
  /resume                  resume the current task
  /expand <n>              toggle message n
  /phase begin [name]      start the document workflow
  /phase <phase>           advance the workflow
  /docs                    show workflow state
  /docs add <kind> <path>  register a document (requirements, design, taskList)
  /quit
`

// execLine applies one line of user input.
func execLine(ctx context.Context, sess *session.Session, p *printer, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return sess.SendUserMessage(ctx, "", line)
	}

	verb, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch verb {
	case "help":
		p.printf("%s", helpText)
	case "quit", "exit":
		return errQuit
	case "new":
		return sess.CreateTask(ctx, rest)
	case "task":
		return sess.Navigate(ctx, rest)
	case "tasks":
		p.printTasks(sess.Store().MainTaskID())
	case "sub":
		subID, msg, _ := strings.Cut(rest, " ")
		if subID == "" {
			return fmt.Errorf("usage: /sub <subtask-id> <message>")
		}
		return sess.CallSubTask(ctx, "", subID, strings.TrimSpace(msg))
	case "resume":
		return sess.Resume(ctx, rest)
	case "expand":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Errorf("usage: /expand <n>")
		}
		expanded, err := sess.ToggleExpanded("", n)
		if err != nil {
			return err
		}
		p.reprint(sess.Store().MainTaskID())
		if !expanded {
			p.printf("collapsed %d\n", n)
		}
	case "phase":
		return execPhase(sess, p, rest)
	case "docs":
		return execDocs(sess, p, rest)
	default:
		return fmt.Errorf("unknown command /%s (try /help)", verb)
	}
	return nil
}

func execPhase(sess *session.Session, p *printer, arg string) error {
	word, name, _ := strings.Cut(arg, " ")
	if word == "begin" {
		ctx, err := sess.BeginWorkflow("", strings.TrimSpace(name))
		if err != nil {
			return err
		}
		p.printf("workflow started, documents in %s\n", ctx.DocsPath)
		return nil
	}
	phase, err := model.ParsePhase(word)
	if err != nil {
		return err
	}
	return sess.AdvanceWorkflow("", phase)
}

func execDocs(sess *session.Session, p *printer, arg string) error {
	if arg == "" {
		return printDocs(sess, p)
	}
	fields := strings.Fields(arg)
	if len(fields) != 3 || fields[0] != "add" {
		return fmt.Errorf("usage: /docs add <kind> <path>")
	}
	kind, err := model.ParseDocumentKind(fields[1])
	if err != nil {
		return err
	}
	if err := sess.RegisterDocument("", kind, fields[2]); err != nil {
		return err
	}
	p.printf("registered %s %s\n", kind, fields[2])
	return nil
}

func printDocs(sess *session.Session, p *printer) error {
	id := sess.Store().MainTaskID()
	ctx, ok := sess.Tracker().Context(id)
	if !ok {
		return fmt.Errorf("no workflow for task %q", id)
	}
	p.printf("task %s phase=%s\n", ctx.TaskID, ctx.CurrentPhase)
	for _, kind := range []model.DocumentKind{model.DocRequirements, model.DocDesign, model.DocTaskList} {
		path := ctx.Documents[kind]
		if path == "" {
			path = "-"
		}
		p.printf("  %-12s %s\n", kind, path)
	}
	return nil
}
