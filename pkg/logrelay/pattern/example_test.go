package pattern_test

import (
	"context"
	"fmt"
	"log"

	"github.com/logrelay/logrelay-go/pkg/logrelay/matcher"
	"github.com/logrelay/logrelay-go/pkg/logrelay/pattern"
)

// Example demonstrates loading an in-memory document into a Store.
func Example() {
	yamlData := []byte(`patterns:
  chat:
    pattern: '^\[CHAT\] (\w+): (.*)$'
    type: chat
    priority: 5
  server_notice:
    pattern: '^\[Server\] (.*)$'
    type: server
    message: "{message}"
    priority: 1
`)

	store := pattern.NewStore()
	n, err := store.Load(context.Background(), pattern.NewBytesSource("inline", yamlData))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Loaded: %d\n", n)
	for _, d := range store.Patterns(true) {
		fmt.Printf("%s (priority %d)\n", d.Name, d.Priority)
	}
	// Output:
	// Loaded: 2
	// server_notice (priority 1)
	// chat (priority 5)
}

// ExampleParse demonstrates inspecting the problems found in a document.
func ExampleParse() {
	yamlData := []byte(`patterns:
  ok:
    pattern: '^ok$'
  typo:
    pattern: '^typo$'
    prority: 3
`)

	doc, err := pattern.Parse("inline", yamlData, matcher.Compiler{}, pattern.Limits{})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Definitions: %d\n", len(doc.Definitions))
	for _, p := range doc.Problems {
		fmt.Println(p)
	}
	// Output:
	// Definitions: 1
	// pattern "typo" in inline: prority: unexpected key
}

// ExampleRender demonstrates template substitution.
func ExampleRender() {
	fmt.Println(pattern.Render("{player} joined the game", "alice", ""))
	// Output:
	// alice joined the game
}
