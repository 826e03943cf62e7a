/*
Package openai implements provider.Model on top of the OpenAI chat completions API.
Any endpoint that speaks the same protocol works by pointing BaseURL at it.

	m := openai.New("gpt-4o-mini", option.WithAPIKey(key))
	out, err := m.Complete(ctx, provider.CompletionParams{
		Instructions: "You are terse.",
		Messages:     messages.List{messages.NewUser("hi")},
	})

Thread messages map onto chat messages one to one: user, assistant (with any tool
calls), and tool results carrying the id of the call they answer.
*/
package openai
