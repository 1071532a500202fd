package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/plauder-dev/plauder/pkg/api"
	"github.com/plauder-dev/plauder/pkg/debug"
	"github.com/plauder-dev/plauder/pkg/observability"
	"github.com/plauder-dev/plauder/pkg/provider"
	"github.com/plauder-dev/plauder/pkg/store"
	"github.com/plauder-dev/plauder/pkg/transport"
)

// toolBinding maps a discovered tool name to the server providing it.
type toolBinding struct {
	server     string
	descriptor api.ToolDescriptor
}

// RunTurn executes one conversational turn: it appends the user
// message, streams provider output to w, executes tool calls, and
// repeats until the model produces a final answer. The transcript is
// committed incrementally, each message before its stream event, so a
// dropped connection never loses acknowledged state.
func (e *Engine) RunTurn(ctx context.Context, req *api.TurnRequest, w transport.EventWriter) error {
	if req.BotName == "" {
		return api.NewInvalidRequestError("botName is required")
	}
	if req.Content == "" && req.UserMessageID == "" {
		return api.NewInvalidRequestError("content is required")
	}

	bot, err := e.resolveBot(req.Namespace, req.BotName)
	if err != nil {
		return err
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = api.NewChatID()
	}

	// One turn per chat at a time. The claim is released on every exit
	// path, including client disconnects.
	if err := e.chats.BeginTurn(req.Namespace, chatID); err != nil {
		if errors.Is(err, store.ErrTurnActive) {
			recordTurnOutcome(observability.TurnOutcomeError)
			return api.NewTurnInProgressError(chatID)
		}
		return api.NewServerError(err.Error())
	}
	defer e.chats.EndTurn(req.Namespace, chatID)

	chat, err := e.chats.GetOrCreate(req.Namespace, chatID)
	if err != nil {
		return api.NewServerError(err.Error())
	}

	history, userMsg, err := e.resolveUserMessage(req, &chat)
	if err != nil {
		return err
	}

	bindings, toolDefs, err := e.collectTools(ctx, req.Namespace, &bot)
	if err != nil {
		recordTurnOutcome(observability.TurnOutcomeError)
		return err
	}

	prov, err := e.providers.ForBot(req.Namespace, &bot)
	if err != nil {
		return err
	}

	// The user message is committed before any provider traffic, so a
	// failed turn still leaves the user's input in the transcript.
	if userMsg != nil {
		if _, err := e.chats.Append(req.Namespace, chatID, *userMsg); err != nil {
			return api.NewServerError(err.Error())
		}
	}

	err = e.runRounds(ctx, req.Namespace, chatID, &bot, prov, history, bindings, toolDefs, w)
	if err != nil {
		if ctx.Err() != nil {
			recordTurnOutcome(observability.TurnOutcomeCancelled)
		} else {
			var cerr *api.ChatError
			if errors.As(err, &cerr) && cerr.Code == api.CodeTurnLimitExceeded {
				recordTurnOutcome(observability.TurnOutcomeLimit)
			} else {
				recordTurnOutcome(observability.TurnOutcomeError)
			}
		}
	}
	return err
}

// resolveUserMessage either synthesizes a new user message from the
// request content or resumes from an existing one. Resuming replays the
// transcript up to and including the referenced message and appends
// nothing. The returned history includes the user message; a non-nil
// message must still be committed by the caller.
func (e *Engine) resolveUserMessage(req *api.TurnRequest, chat *api.Chat) ([]api.Message, *api.Message, error) {
	if req.UserMessageID != "" {
		for i := range chat.Messages {
			m := &chat.Messages[i]
			if m.ID == req.UserMessageID && m.Role == api.RoleUser {
				history := make([]api.Message, i+1)
				copy(history, chat.Messages[:i+1])
				return history, nil, nil
			}
		}
		return nil, nil, api.NewMessageNotFoundError(req.UserMessageID)
	}

	msg := api.Message{
		Role:      api.RoleUser,
		Content:   api.TextContent(req.Content),
		Timestamp: time.Now(),
		ID:        api.NewMessageID(),
		Server:    req.Server,
	}
	if len(chat.Messages) > 0 {
		msg.ParentID = chat.Messages[len(chat.Messages)-1].ID
	}
	history := append(append([]api.Message{}, chat.Messages...), msg)
	return history, &msg, nil
}

// collectTools discovers every tool the bot's servers provide and
// returns the name bindings plus the provider-facing definitions. An
// unresolvable server fails the whole turn; a bot configured with a
// tool server expects it to be there.
func (e *Engine) collectTools(ctx context.Context, namespace string, bot *api.BotConfig) (map[string]toolBinding, []provider.ToolDef, error) {
	bindings := make(map[string]toolBinding)
	var defs []provider.ToolDef

	for _, server := range bot.MCPServers {
		descriptors, err := e.gateway.ListTools(ctx, namespace, server)
		if err != nil {
			return nil, nil, err
		}
		for _, td := range descriptors {
			if _, exists := bindings[td.Name]; exists {
				slog.Warn("tool name collision across servers, keeping first",
					"tool", td.Name, "server", server)
				continue
			}
			bindings[td.Name] = toolBinding{server: server, descriptor: td}
			defs = append(defs, provider.ToolDef{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.InputSchema,
			})
		}
	}
	return bindings, defs, nil
}

// runRounds drives the provider loop until a final answer, a gated tool
// call, or the round bound.
func (e *Engine) runRounds(ctx context.Context, namespace, chatID string, bot *api.BotConfig, prov provider.Provider, history []api.Message, bindings map[string]toolBinding, toolDefs []provider.ToolDef, w transport.EventWriter) error {
	maxTurns := e.cfg.maxTurns()

	for round := 0; round < maxTurns; round++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		preq := &provider.Request{
			Model:           bot.Model,
			Messages:        toProviderMessages(history),
			Tools:           toolDefs,
			MaxTokens:       bot.MaxTokens,
			ReasoningEffort: bot.ReasoningEffort,
		}
		debug.Log("engine", "provider round",
			"chat", chatID, "round", round, "history", len(history))

		start := time.Now()
		eventCh, err := prov.Stream(ctx, preq)
		if err != nil {
			observability.ProviderRequestsTotal.WithLabelValues(prov.Name(), bot.Model, "error").Inc()
			observability.ProviderLatency.WithLabelValues(prov.Name(), bot.Model).Observe(time.Since(start).Seconds())
			return err
		}

		res, err := e.consumeRound(ctx, eventCh, w)
		observability.ProviderLatency.WithLabelValues(prov.Name(), bot.Model).Observe(time.Since(start).Seconds())
		if err != nil {
			observability.ProviderRequestsTotal.WithLabelValues(prov.Name(), bot.Model, "error").Inc()
			return err
		}
		observability.ProviderRequestsTotal.WithLabelValues(prov.Name(), bot.Model, "success").Inc()

		// Final answer: commit the assistant message and finish.
		if len(res.toolCalls) == 0 {
			msg := e.assistantMessage(res, bot, prov.Name(), history)
			if _, err := e.chats.Append(namespace, chatID, msg); err != nil {
				return api.NewServerError(err.Error())
			}
			recordTurnOutcome(observability.TurnOutcomeCompleted)
			observability.TurnIterations.Observe(float64(round + 1))
			return nil
		}

		// The model asked for tools. Commit any assistant text first so
		// the transcript shows the model's words before the results.
		if res.text != "" || res.reasoning != "" {
			msg := e.assistantMessage(res, bot, prov.Name(), history)
			if _, err := e.chats.Append(namespace, chatID, msg); err != nil {
				return api.NewServerError(err.Error())
			}
			history = append(history, msg)
		}

		done, err := e.dispatchToolCalls(ctx, namespace, chatID, res.toolCalls, bindings, &history, w)
		if err != nil {
			return err
		}
		if done {
			// A gated call ended the turn; the client resumes through
			// the confirmation endpoint.
			recordTurnOutcome(observability.TurnOutcomeNeedsConfirm)
			observability.TurnIterations.Observe(float64(round + 1))
			return nil
		}
	}

	return api.NewTurnLimitExceededError(maxTurns)
}

// roundResult accumulates one provider round.
type roundResult struct {
	text      string
	reasoning string
	toolCalls []provider.Event
}

// consumeRound drains one provider stream, forwarding token and
// reasoning fragments to the client as they arrive.
func (e *Engine) consumeRound(ctx context.Context, eventCh <-chan provider.Event, w transport.EventWriter) (*roundResult, error) {
	result := &roundResult{}

	for ev := range eventCh {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		switch ev.Type {
		case provider.EventTextDelta:
			result.text += ev.Delta
			if err := w.WriteEvent(ctx, api.TokenEvent(ev.Delta)); err != nil {
				return nil, err
			}
		case provider.EventReasoningDelta:
			result.reasoning += ev.Delta
			if err := w.WriteEvent(ctx, api.ReasoningEvent(ev.Delta)); err != nil {
				return nil, err
			}
		case provider.EventToolCall:
			result.toolCalls = append(result.toolCalls, ev)
		case provider.EventError:
			return nil, ev.Err
		case provider.EventDone:
			// Stream drains to close after this.
		}
	}
	return result, nil
}

// dispatchToolCalls runs the round's tool calls in order. Each result
// is committed to the transcript before its tool_result event is sent.
// Reports done=true when a confirmation-gated call ended the turn.
func (e *Engine) dispatchToolCalls(ctx context.Context, namespace, chatID string, calls []provider.Event, bindings map[string]toolBinding, history *[]api.Message, w transport.EventWriter) (bool, error) {
	for _, call := range calls {
		args, argErr := parseArguments(call.ToolArgs)

		binding, known := bindings[call.ToolName]
		server := binding.server

		if e.gate.RequiresConfirmation(namespace, server, call.ToolName) {
			if err := w.WriteEvent(ctx, api.ToolCallEvent(server, call.ToolName, args, true)); err != nil {
				return false, err
			}
			return true, nil
		}

		if err := w.WriteEvent(ctx, api.ToolCallEvent(server, call.ToolName, args, false)); err != nil {
			return false, err
		}

		var resultText string
		var isError bool
		switch {
		case !known:
			resultText = "no configured tool server provides tool " + call.ToolName
			isError = true
		case argErr != nil:
			resultText = "invalid tool arguments: " + argErr.Error()
			isError = true
		default:
			out, err := e.gateway.Execute(ctx, namespace, server, call.ToolName, args)
			// A call aborted by turn cancellation leaves no transcript
			// artifact; only genuine tool outcomes get committed.
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			resultText = out
			if err != nil {
				isError = true
				if resultText == "" {
					resultText = err.Error()
				}
				slog.Warn("tool execution failed",
					"server", server, "tool", call.ToolName, "error", err)
			}
		}

		status := "success"
		if isError {
			status = "error"
		}
		observability.ToolExecutionsTotal.WithLabelValues(server, call.ToolName, status).Inc()

		msg := api.Message{
			Role:      api.RoleUser,
			Content:   api.TextContent(resultText),
			Timestamp: time.Now(),
			ID:        api.NewMessageID(),
			Server:    server,
			Tool:      call.ToolName,
			Arguments: args,
		}
		if n := len(*history); n > 0 {
			msg.ParentID = (*history)[n-1].ID
		}
		if _, err := e.chats.Append(namespace, chatID, msg); err != nil {
			return false, api.NewServerError(err.Error())
		}
		*history = append(*history, msg)

		if err := w.WriteEvent(ctx, api.ToolResultEvent(server, call.ToolName, resultText, isError)); err != nil {
			return false, err
		}
	}
	return false, nil
}

// assistantMessage builds the committed assistant message for one round.
func (e *Engine) assistantMessage(r *roundResult, bot *api.BotConfig, providerName string, history []api.Message) api.Message {
	msg := api.Message{
		Role:             api.RoleAssistant,
		Content:          api.TextContent(r.text),
		Timestamp:        time.Now(),
		ID:               api.NewMessageID(),
		Model:            bot.Model,
		Provider:         providerName,
		ReasoningContent: r.reasoning,
	}
	if len(history) > 0 {
		msg.ParentID = history[len(history)-1].ID
	}
	return msg
}

// toProviderMessages flattens the transcript to the provider wire
// roles. Tool-provenance messages travel as user content, matching how
// they are stored.
func toProviderMessages(history []api.Message) []provider.Message {
	out := make([]provider.Message, 0, len(history))
	for _, m := range history {
		out = append(out, provider.Message{
			Role:    string(m.Role),
			Content: m.Content.Plain(),
		})
	}
	return out
}

// parseArguments decodes the model's argument JSON. An empty string is
// a valid no-argument call.
func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func recordTurnOutcome(outcome string) {
	observability.TurnsTotal.WithLabelValues(outcome).Inc()
}
