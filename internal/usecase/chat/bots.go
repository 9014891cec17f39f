package chat

import "sync"

// Bot holds per-bot generation settings.
type Bot struct {
	ID           string
	SystemPrompt string
	Temperature  float64
}

// defaultSystemPrompt is used for bots without a registered prompt.
const defaultSystemPrompt = "You are a concise, polite assistant. " +
	"Prefer Korean answers when the user writes in Korean. " +
	"Use the supplied context when it is relevant and always cite sources if possible."

// Registry maps bot ids to their configuration. Unknown bots resolve to a
// default so a request never fails on bot lookup.
type Registry struct {
	mu   sync.RWMutex
	bots map[string]Bot
}

// NewRegistry creates a registry pre-seeded with the sample bot.
func NewRegistry() *Registry {
	r := &Registry{bots: make(map[string]Bot)}
	r.Put(Bot{
		ID: "sample-bot",
		SystemPrompt: "당신은 간결하고 공손한 한국어 AI 비서입니다.\n" +
			"규칙:\n- 답변은 짧고 분명하게.\n- 모르면 추측하지 말고 추가 정보를 요청.",
		Temperature: 0.3,
	})
	return r
}

// Get resolves a bot id, falling back to default settings.
func (r *Registry) Get(botID string) Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.bots[botID]; ok {
		return b
	}
	return Bot{ID: botID, SystemPrompt: defaultSystemPrompt, Temperature: 0.2}
}

// Put registers or replaces a bot.
func (r *Registry) Put(b Bot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bots[b.ID] = b
}
