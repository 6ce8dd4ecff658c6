// Package immagent is an immutable agent state store.
//
// ImmAgent records the evolving state of LLM-backed conversational agents as
// a content-addressed, append-only graph of values persisted in PostgreSQL
// (pgx) and cached in memory. Each user turn produces a new agent version
// with a fresh UUID whose parent pointer references the previous version;
// the prior version is never mutated. This yields three properties clients
// rely on:
//
//   - Safe caching: values are frozen at creation, so the identity cache can
//     hand out shared instances without copies or locks on reads.
//   - Full history: lineage is a simple parent-pointer walk (a single
//     recursive query on the SQL backend).
//   - Reproducibility: any version's conversation can be reconstructed from
//     its identifier alone.
//
// # Quick Start
//
//	store, err := immagent.Connect(ctx, os.Getenv("DATABASE_URL"),
//	    immagent.WithProvider(anthropic.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.InitSchema(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	agent, err := store.CreateAgent(ctx, "assistant",
//	    "You are a helpful assistant.", "claude-3-5-haiku-20241022",
//	    immagent.ModelConfig{})
//	agent, err = store.Advance(ctx, agent, "Hello!")
//
// Every Advance call returns a new *Agent; the one you passed in is
// untouched and remains loadable forever (until explicitly deleted).
//
// # Tools
//
// Pass a tool provider to enable tool use during a turn. The mcp subpackage
// connects to MCP servers and exposes their catalogs as a provider:
//
//	mgr := mcp.NewManager(mcp.ServerConfig{
//	    Name: "weather", Command: "python", Args: []string{"weather_server.py"},
//	})
//	if err := mgr.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	agent, err = store.Advance(ctx, agent, "What's the weather in Paris?",
//	    immagent.WithTools(mgr))
//
// Tool executions within one round run concurrently; their results are
// appended to the conversation in the original call order. A failed tool
// never fails the turn: its result message carries "Error: ..." and the
// model decides what to do next.
//
// # Branching
//
// Clone emits a sibling (same parent, fresh UUID) so alternative futures can
// be advanced from the same history. WithMetadata emits a child with an
// altered name, model, metadata, or model config but the same conversation.
//
// # In-memory stores
//
// NewMemoryStore returns a Store with no database behind it. Same API, same
// semantics, strong (unbounded) caching; useful for tests and ephemeral
// agents.
package immagent
