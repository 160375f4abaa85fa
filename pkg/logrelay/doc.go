// Package logrelay turns lines appended to game-server log files into
// sanitized chat events.
//
// This package allows you to:
//   - Tail one or more log files, surviving rotation and truncation
//   - Match each line against prioritized YAML patterns
//   - Neutralize mass pings and chat markup in player-controlled text
//   - Drop banned senders and escalate malicious content to security alerts
//
// # Basic Usage
//
//	store := pattern.NewStore(pattern.WithLogger(logger))
//	if _, err := store.Load(ctx, pattern.NewFileSource("patterns.yaml")); err != nil {
//	    log.Fatal(err)
//	}
//
//	relay, err := logrelay.NewRelay(store,
//	    []logrelay.Source{{ID: "game", Path: "/srv/game/server.log"}},
//	    logrelay.SinkFunc(func(ctx context.Context, ev event.Event) error {
//	        fmt.Println(ev.Display)
//	        return nil
//	    }),
//	    logrelay.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := relay.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer relay.Stop()
//
// To parse a single line:
//
//	parser, err := logrelay.NewEventParser(store)
//	if ev := parser.Parse(ctx, line, "game"); ev != nil {
//	    // deliver ev
//	}
//
// # Field Extraction
//
// Captures are assigned by position. With two or more groups, group 1 is the
// sender and group 2 the message. A single group is the sender, unless the
// pattern type is "server", in which case it is the message.
//
// # Bounded Matching
//
// The default engine is Go's regexp, which runs in time linear in the line
// length. [matcher.EngineBacktrack] allows lookaround through
// github.com/dlclark/regexp2 under a per-match timeout; a timeout counts as
// no match for that pattern.
package logrelay
