package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ragbot/agent"
	"ragbot/config"
	"ragbot/retrieval"
	"ragbot/tools"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("bad LOG_LEVEL, using info", "error", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if cfg.TelegramToken == "" {
		logger.Error("TELEGRAM_BOT_TOKEN environment variable is required")
		os.Exit(1)
	}

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down")
		cancel()
	}()

	// Providers are shared across sessions; each is safe for that (the
	// calendar synchronizes its service handle, the rest are stateless
	// after Init).
	calendarProvider := tools.NewCalendar(
		logger.With("component", "calendar"),
		cfg.GoogleClientID,
		cfg.GoogleSecret,
		cfg.GoogleRedirectURL,
		cfg.GoogleTokenFile,
	)
	providers := []tools.Provider{
		tools.NewWeather(logger.With("component", "weather")),
		tools.NewClock(),
		calendarProvider,
		tools.NewWeb(logger.With("component", "web")),
	}

	// Retrieval is optional: without a service URL the bot answers from
	// conversation and tools alone.
	var assembler *retrieval.Assembler
	if cfg.RetrievalURL != "" {
		assembler = retrieval.NewAssembler(retrieval.NewClient(cfg.RetrievalURL), cfg.RetrievalTopK)
		logger.Info("retrieval enabled", "url", cfg.RetrievalURL, "top_k", cfg.RetrievalTopK)
	}

	gateway := agent.NewGateway(logger.With("component", "gateway"), cfg.OllamaModel, cfg.OllamaURL, cfg.ModelTimeout)

	sessions := newSessionPool(logger, gateway, providers, assembler, cfg.MaxToolRounds)
	defer sessions.closeAll()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		logger.Error("creating telegram bot", "error", err)
		os.Exit(1)
	}
	logger.Info("authorized", "account", bot.Self.UserName, "model", cfg.OllamaModel)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			logger.Info("bot stopped")
			return
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			go handleMessage(ctx, logger, bot, sessions, calendarProvider, cfg, update.Message)
		}
	}
}

// sessionPool lazily creates one agent session per chat. Sessions live for
// the application's lifetime and are torn down together at shutdown.
type sessionPool struct {
	logger    *slog.Logger
	gateway   agent.Completer
	providers []tools.Provider
	assembler *retrieval.Assembler
	maxRounds int

	mu       sync.Mutex
	sessions map[int64]*agent.Session
}

func newSessionPool(logger *slog.Logger, gateway agent.Completer, providers []tools.Provider, assembler *retrieval.Assembler, maxRounds int) *sessionPool {
	return &sessionPool{
		logger:    logger,
		gateway:   gateway,
		providers: providers,
		assembler: assembler,
		maxRounds: maxRounds,
		sessions:  make(map[int64]*agent.Session),
	}
}

func (p *sessionPool) get(ctx context.Context, chatID int64) (*agent.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[chatID]; ok {
		return s, nil
	}

	registry := tools.NewRegistry(p.logger.With("component", "registry"), p.providers...)
	session := agent.NewSession(p.logger.With("component", "agent"), p.gateway, registry, p.assembler, p.maxRounds)
	if err := session.Init(ctx); err != nil {
		return nil, err
	}
	p.logger.Info("session created", "chat", chatID, "session", session.ID())
	p.sessions[chatID] = session
	return session, nil
}

func (p *sessionPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		s.Close()
	}
}

func handleMessage(
	ctx context.Context,
	logger *slog.Logger,
	bot *tgbotapi.BotAPI,
	sessions *sessionPool,
	calendarProvider *tools.Calendar,
	cfg *config.Config,
	message *tgbotapi.Message,
) {
	logger.Debug("message received", "from", message.From.UserName, "text", message.Text)

	var reply string

	switch message.Command() {
	case "start":
		reply = "Hello! I'm an AI assistant powered by " + cfg.OllamaModel + ".\n\n" +
			"I can:\n• Answer questions using my reference library\n• Check the weather anywhere\n• Tell you the time\n• Check your Google Calendar\n• Read web pages for you\n\n" +
			"Use /auth to connect your Google Calendar."

	case "help":
		reply = "Available commands:\n" +
			"/start - Start the bot\n" +
			"/help - Show this help message\n" +
			"/auth - Connect Google Calendar\n" +
			"/authcode <code> - Complete Google auth\n\n" +
			"Or just ask me things like:\n" +
			"• \"What's the weather in Shenzhen?\"\n" +
			"• \"What's on my calendar today?\"\n" +
			"• \"Summarize https://example.com\""

	case "auth":
		authURL, err := calendarProvider.AuthURL()
		switch {
		case err != nil:
			reply = "⚠️ " + err.Error()
		case authURL == "":
			reply = "✅ Google Calendar is already connected!"
		default:
			reply = "🔐 To connect Google Calendar:\n\n" +
				"1. Click this link:\n" + authURL + "\n\n" +
				"2. Sign in and authorize access\n\n" +
				"3. Copy the code you receive\n\n" +
				"4. Send: /authcode YOUR_CODE"
		}

	case "authcode":
		code := strings.TrimSpace(message.CommandArguments())
		if code == "" {
			reply = "Please provide the authorization code: /authcode YOUR_CODE"
		} else if err := calendarProvider.CompleteAuth(ctx, code); err != nil {
			reply = "❌ Authentication failed: " + err.Error()
		} else {
			reply = "✅ Google Calendar connected! Try asking \"What's on my calendar?\""
		}

	case "":
		// Not a command, hand it to the agent loop.
		session, err := sessions.get(ctx, message.Chat.ID)
		if err != nil {
			logger.Error("session init failed", "chat", message.Chat.ID, "error", err)
			reply = "Sorry, I couldn't start a conversation. Please try again."
			break
		}
		reply = invokeAgent(ctx, logger, session, message.Text)

	default:
		reply = "Unknown command. Try /help"
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, reply)
	msg.ReplyToMessageID = message.MessageID
	if _, err := bot.Send(msg); err != nil {
		logger.Warn("error sending message", "error", err)
	}
}

// invokeAgent maps the loop's error taxonomy onto user-facing replies.
func invokeAgent(ctx context.Context, logger *slog.Logger, session *agent.Session, text string) string {
	answer, err := session.Invoke(ctx, text)
	if err == nil {
		return answer
	}

	var roundLimit *agent.RoundLimitError
	if errors.As(err, &roundLimit) {
		logger.Warn("round cap hit", "session", session.ID())
		if answer != "" {
			return answer
		}
		return "Sorry, that took too many steps to work out. Could you rephrase the question?"
	}

	var modelErr *agent.ModelCallError
	if errors.As(err, &modelErr) {
		logger.Error("model backend failed", "session", session.ID(), "error", err)
		return "Sorry, I couldn't reach the model backend. Make sure Ollama is running."
	}

	logger.Error("agent error", "session", session.ID(), "error", err)
	return "Sorry, I couldn't process that."
}
