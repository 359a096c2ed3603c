// Package seeder generates demo traffic: fake end users and a weighted mix
// of raw events, published straight onto the bus so a development stack has
// progression activity to chew on.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/common/messaging"
	"github.com/questforge-labs/questforge/internal/models"
)

// Config controls a seeding run.
type Config struct {
	ProjectID string
	Users     int
	Events    int

	// TimeSpread backdates event timestamps across this window so streak
	// and campaign data does not all land on one instant.
	TimeSpread time.Duration

	// Seed makes runs reproducible. Zero picks a time-based seed.
	Seed int64
}

// eventWeights is the demo traffic mix. Orders are server-attributed so the
// commission path sees trusted amounts.
var eventWeights = []struct {
	event   string
	weight  int
	trusted bool
}{
	{"login", 40, false},
	{"page.viewed", 25, false},
	{"profile.completed", 10, false},
	{"content.shared", 10, false},
	{"order.completed", 10, true},
	{"review.posted", 5, false},
}

// Generator produces fake envelopes for one project.
type Generator struct {
	cfg   Config
	faker *gofakeit.Faker
	rng   *rand.Rand
	users []string
}

func NewGenerator(cfg Config) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	g := &Generator{
		cfg:   cfg,
		faker: gofakeit.New(seed),
		rng:   rand.New(rand.NewSource(seed)),
	}
	for i := 0; i < cfg.Users; i++ {
		g.users = append(g.users, fmt.Sprintf("%s-%d", g.faker.Username(), i))
	}
	return g
}

// Users returns the external IDs the generator attributes events to.
func (g *Generator) Users() []string {
	return g.users
}

// Event produces the i-th envelope of a run of total events.
func (g *Generator) Event(i, total int) *models.Envelope {
	event, trusted := g.pickEvent()

	now := time.Now().UTC()
	timestamp := now
	if g.cfg.TimeSpread > 0 && total > 1 {
		offset := time.Duration(float64(g.cfg.TimeSpread) * float64(i) / float64(total-1))
		timestamp = now.Add(-(g.cfg.TimeSpread - offset))
	}

	env := &models.Envelope{
		EventID:    g.faker.UUID(),
		ProjectID:  g.cfg.ProjectID,
		UserID:     g.users[g.rng.Intn(len(g.users))],
		Event:      event,
		Properties: g.properties(event),
		Timestamp:  timestamp,
		ReceivedAt: timestamp,
		Source:     models.SourceClient,
	}
	if trusted {
		env.Source = models.SourceServer
	}
	return env
}

func (g *Generator) pickEvent() (string, bool) {
	totalWeight := 0
	for _, w := range eventWeights {
		totalWeight += w.weight
	}
	n := g.rng.Intn(totalWeight)
	for _, w := range eventWeights {
		if n < w.weight {
			return w.event, w.trusted
		}
		n -= w.weight
	}
	return eventWeights[0].event, eventWeights[0].trusted
}

func (g *Generator) properties(event string) map[string]any {
	switch event {
	case "order.completed":
		return map[string]any{
			"orderId":  g.faker.UUID(),
			"amount":   int64(g.rng.Intn(19000) + 1000), // minor units
			"currency": "USD",
			"items":    g.rng.Intn(5) + 1,
		}
	case "page.viewed":
		return map[string]any{"path": "/" + g.faker.Word()}
	case "content.shared":
		return map[string]any{"channel": g.faker.RandomString([]string{"twitter", "email", "link"})}
	case "review.posted":
		return map[string]any{"rating": g.rng.Intn(5) + 1}
	default:
		return nil
	}
}

// Run publishes cfg.Events envelopes to the project's raw subject.
func Run(ctx context.Context, bus messaging.Publisher, cfg Config, logger *logging.Logger) error {
	if cfg.ProjectID == "" {
		return fmt.Errorf("seeder: project id is required")
	}
	if cfg.Users <= 0 || cfg.Events <= 0 {
		return fmt.Errorf("seeder: users and events must be positive")
	}

	g := NewGenerator(cfg)
	subject := messaging.RawEventSubject(cfg.ProjectID)

	for i := 0; i < cfg.Events; i++ {
		env := g.Event(i, cfg.Events)
		data, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("seeder: marshal envelope: %w", err)
		}
		if err := bus.Publish(ctx, subject, data); err != nil {
			return fmt.Errorf("seeder: publish event %d: %w", i, err)
		}
	}

	logger.Info("seeding complete",
		logging.FieldProjectID, cfg.ProjectID,
		"users", cfg.Users,
		"events", cfg.Events,
		"subject", subject)
	return nil
}
