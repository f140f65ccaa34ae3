package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"supportwidget/entity"
	"supportwidget/internal/config"
	"supportwidget/internal/lib/logger"
	"supportwidget/internal/lib/sl"
	"supportwidget/internal/stubserver"
	"supportwidget/internal/widget"
	"supportwidget/internal/widget/ui"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env)

	lg.Info("starting support widget demo", slog.String("config", *configPath), slog.String("env", conf.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Embedded reference backend so the demo runs without external services.
	if conf.Stub.Enabled {
		stub := stubserver.New(lg)
		addr := net.JoinHostPort(conf.Stub.BindIP, conf.Stub.Port)
		go func() {
			lg.Info("starting stub backend", slog.String("address", addr))
			if err := http.ListenAndServe(addr, stub.Router()); err != nil {
				lg.Error("stub backend stopped", sl.Err(err))
			}
		}()
	}

	app, err := widget.New(widget.Config{
		ApiURL:     conf.Widget.ApiURL,
		Username:   conf.Widget.Username,
		Position:   conf.Widget.Position,
		SiteOrigin: conf.Widget.SiteOrigin,
		User: entity.WidgetUser{
			ID:         conf.User.ID,
			ExternalID: conf.User.ExternalID,
			Email:      conf.User.Email,
			Name:       conf.User.Name,
			FullName:   conf.User.FullName,
		},
		StoragePath: conf.Storage.Path,
	}, ui.NewTerminalRenderer(os.Stdout), lg)
	if err != nil {
		lg.Error("widget init failed", sl.Err(err))
		return
	}

	app.Run(ctx)

	fmt.Println("commands: open | pick N | back | talk | retry | send <text> | attach <path> | close | hide | quit")
	runPrompt(ctx, app, lg)

	lg.Info("demo stopped")
}

// runPrompt translates stdin commands into widget intents, the demo's
// substitute for DOM events.
func runPrompt(ctx context.Context, app *widget.App, lg *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")

		switch cmd {
		case "":
		case "open":
			app.Open()
		case "pick":
			n, err := strconv.Atoi(strings.TrimSpace(arg))
			if err != nil || n < 1 {
				fmt.Println("usage: pick N")
				continue
			}
			// pick is positional against the rendered list
			cats := app.Categories()
			if n > len(cats) {
				fmt.Println("no such topic")
				continue
			}
			app.SelectCategory(cats[n-1].ID)
		case "back":
			app.Back()
		case "talk":
			app.TalkToAgent()
		case "retry":
			app.Retry()
		case "send":
			app.Send(arg)
		case "attach":
			path := strings.TrimSpace(arg)
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Println("cannot read file:", err)
				continue
			}
			app.Attach(filepath.Base(path), data)
		case "close":
			app.EndChat()
		case "hide":
			app.Dismiss()
		case "quit":
			return
		default:
			fmt.Println("unknown command:", cmd)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		lg.Error("stdin read failed", sl.Err(err))
	}
}
