package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/config"
	"strangerchat/backend/internal/identity"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]
  pool                       list queued actors, oldest first
  status <actor_id>          show the actor's matchmaking state
  end <conversation_id>      end a conversation and notify both actors
  evict <actor_id>           remove a queued actor and notify it
  history <actor_id> [n]     list archived conversations of an actor`

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	store := storage.NewRedisStore(rdb, cfg.Match.EndedRetention)
	// Events published here reach the connected clients through the servers' relays.
	relay := chathub.NewRedisRelay(rdb, nil)

	switch command := os.Args[1]; command {
	case "pool":
		err = listPool(ctx, store)
	case "status":
		requireArgs(3, "Usage: admin status <actor_id>")
		err = showStatus(ctx, store, parseActor(os.Args[2]))
	case "end":
		requireArgs(3, "Usage: admin end <conversation_id>")
		err = endConversation(ctx, store, relay, os.Args[2])
	case "evict":
		requireArgs(3, "Usage: admin evict <actor_id>")
		err = evict(ctx, store, relay, parseActor(os.Args[2]))
	case "history":
		requireArgs(3, "Usage: admin history <actor_id> [n]")
		limit := 20
		if len(os.Args) > 3 {
			if limit, err = strconv.Atoi(os.Args[3]); err != nil || limit <= 0 {
				fmt.Println("Invalid count. Please provide a positive integer.")
				os.Exit(1)
			}
		}
		err = history(ctx, cfg, parseActor(os.Args[2]), limit)
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func requireArgs(n int, msg string) {
	if len(os.Args) < n {
		fmt.Println(msg)
		os.Exit(1)
	}
}

func parseActor(raw string) string {
	actor, err := identity.Parse(raw)
	if err != nil {
		fmt.Printf("Invalid actor id: %v\n", err)
		os.Exit(1)
	}
	return actor.ID
}

func listPool(ctx context.Context, store storage.Store) error {
	size, err := store.PoolSize(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d actor(s) waiting\n", size)

	pool := chathub.NewWaitingPool(store)
	pos := 0
	for entry, err := range pool.Entries(ctx) {
		if err != nil {
			return err
		}
		pos++
		fmt.Printf("%4d  %-44s  since %s  traits=%s/%s  filter=%s\n",
			pos, entry.ActorID, entry.JoinedAt.Format(time.RFC3339),
			orDash(string(entry.Traits.Gender)), orDash(string(entry.Traits.AgeBand)), describeFilter(entry.Filter))
	}
	return nil
}

// showStatus reads the state without touching the actor's heartbeat.
func showStatus(ctx context.Context, store storage.Store, actorID string) error {
	conv, err := store.ActiveConversation(ctx, actorID)
	if err == nil {
		return printJSON(models.Status{State: models.StateMatched, ConversationID: conv.ID, PartnerID: conv.PartnerOf(actorID)})
	}
	if !errors.Is(err, storage.ErrNoActiveConversation) {
		return err
	}
	entry, err := store.Entry(ctx, actorID)
	if errors.Is(err, storage.ErrNotQueued) {
		return printJSON(models.Status{State: models.StateIdle})
	}
	if err != nil {
		return err
	}
	pos, err := store.Position(ctx, actorID)
	if err != nil {
		return err
	}
	fmt.Printf("queued since %s\n", entry.JoinedAt.Format(time.RFC3339))
	return printJSON(models.Status{State: models.StateQueued, Position: pos})
}

// endConversation ends without an initiator, so both actors see partner_left.
func endConversation(ctx context.Context, store storage.Store, relay *chathub.RedisRelay, conversationID string) error {
	conversations := chathub.NewConversationManager(store, nil, relay)
	conv, err := conversations.End(ctx, conversationID, models.EndExplicitLeave, "")
	if err != nil {
		return err
	}
	fmt.Printf("Conversation %s between %s and %s is %s.\n", conv.ID, conv.ActorA, conv.ActorB, conv.Status)
	return nil
}

func evict(ctx context.Context, store storage.Store, relay *chathub.RedisRelay, actorID string) error {
	if err := store.Dequeue(ctx, actorID); err != nil {
		return err
	}
	ev := models.Event{Type: models.EventQueueExpired, ActorID: actorID, At: time.Now().UTC()}
	if err := relay.Notify(ctx, ev); err != nil {
		log.Warnf("Evicted %s but could not notify it: %v", actorID, err)
	}
	fmt.Printf("Actor %s has been removed from the pool.\n", actorID)
	return nil
}

func history(ctx context.Context, cfg *config.Config, actorID string, limit int) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	convs, err := storage.NewArchive(db).ConversationsOf(ctx, actorID, limit)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Println("No archived conversations.")
		return nil
	}
	for _, conv := range convs {
		line := fmt.Sprintf("%s  %s  with %s  %s", conv.CreatedAt.Format(time.RFC3339), conv.ID, conv.PartnerOf(actorID), conv.Status)
		if conv.Status == models.ConversationEnded {
			line += fmt.Sprintf(" (%s after %s)", conv.EndReason, conv.EndedAt.Sub(conv.CreatedAt).Round(time.Second))
		}
		fmt.Println(line)
	}
	return nil
}

func describeFilter(f models.Filter) string {
	if f.Kind != models.FilterSpecific {
		return "any"
	}
	return fmt.Sprintf("%s/%s", orDash(string(f.Gender)), orDash(string(f.AgeBand)))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
