// Package convo is a context budgeting and conversation orchestration
// engine for long-running assistant conversations backed by PostgreSQL.
//
// It decides, for every turn, what enters the model's bounded context
// window: the system prompt with pinned-document and retrieved-knowledge
// sections, compressed summaries of older history, and a verbatim tail of
// recent messages. When unsummarized history crosses a configured token
// threshold, older messages are condensed into summary records by a
// cheaper model and flagged, so the stored history stays complete while
// the active window stays inside budget.
//
// A turn runs as a two-phase model round: a non-streaming call that may
// request tool use (code execution, image generation), tool dispatch with
// per-tool timeouts and progress lines, then a streaming call narrating
// the results. The caller consumes a single chunk stream; cancellation
// stops the stream cleanly and whatever was emitted is exactly what gets
// persisted.
//
// # Basic usage
//
//	pool, _ := pgxpool.New(ctx, databaseURL)
//	store := storage.NewPostgresStore(pool)
//	chat := anthropic.NewClientFromEnv()
//
//	svc, err := convo.New(store, chat, convo.DefaultConfig(),
//	    convo.WithCodeExecutor(sandbox),
//	    convo.WithSemanticSearch(search),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	conv, _ := svc.CreateConversation(ctx, "")
//	stream, err := svc.SendMessage(ctx, conv.ID, "calculate 2+2 with code", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for stream.Next() {
//	    fmt.Print(stream.Current().Text)
//	}
//	if err := stream.Err(); err != nil {
//	    log.Fatal(err)
//	}
//
// Configuration can also be loaded from YAML with ${VAR:default}
// environment interpolation via LoadConfig.
package convo
