package services

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// fakeReply scripts one LLM turn: either content or an error.
type fakeReply struct {
	content string
	err     error
}

// fakeModel is a scripted llms.Model. Replies are consumed in order; the
// last one repeats once the script runs out.
type fakeModel struct {
	mu      sync.Mutex
	replies []fakeReply
	prompts []string
}

func newFakeModel(replies ...fakeReply) *fakeModel {
	return &fakeModel{replies: replies}
}

func (f *fakeModel) next(prompt string) fakeReply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if len(f.replies) == 0 {
		return fakeReply{content: ""}
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeModel) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	prompt := ""
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt += text.Text
			}
		}
	}
	reply := f.next(prompt)
	if reply.err != nil {
		return nil, reply.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: reply.content}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	reply := f.next(prompt)
	return reply.content, reply.err
}
