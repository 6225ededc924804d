package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"hashmine/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

type Generator interface {
	NextWithdrawalCode(ctx context.Context) (string, error)
	NextDepositCode(ctx context.Context) (string, error)
}

const (
	WithdrawalPrefix = "WD"
	DepositPrefix    = "DP"
)

type RedisGenerator struct {
	rdb *redis.Client
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextWithdrawalCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, WithdrawalPrefix)
}

func (g *RedisGenerator) NextDepositCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, DepositPrefix)
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string) (string, error) {
	today := time.Now().UTC().Format("060102")
	key := fmt.Sprintf("%s:%s:%s", rediskey.SequencePrefix, prefix, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		expire := time.Until(time.Now().Truncate(24 * time.Hour).Add(24*time.Hour - time.Second))
		_ = g.rdb.Expire(ctx, key, expire).Err()
	}

	return formatCode(prefix, today, seq), nil
}

// formatCode renders PREFIX-YYMMDD-SEQ plus two random characters. The
// sequence is base36 padded to three characters.
func formatCode(prefix, day string, seq int64) string {
	encodedSeq := strings.ToUpper(fmt.Sprintf("%03s", strconv.FormatInt(seq, 36)))
	randSuffix, _ := randomAlphaNumeric(2)
	return fmt.Sprintf("%s-%s-%s%s", prefix, day, encodedSeq, randSuffix)
}

// MemoryGenerator is a process-local Generator for single-node setups and tests.
type MemoryGenerator struct {
	mu   sync.Mutex
	day  string
	seqs map[string]int64
	now  func() time.Time
}

func NewMemoryGenerator() *MemoryGenerator {
	return &MemoryGenerator{seqs: map[string]int64{}, now: time.Now}
}

func (g *MemoryGenerator) NextWithdrawalCode(ctx context.Context) (string, error) {
	return g.next(WithdrawalPrefix), nil
}

func (g *MemoryGenerator) NextDepositCode(ctx context.Context) (string, error) {
	return g.next(DepositPrefix), nil
}

func (g *MemoryGenerator) next(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	today := g.now().UTC().Format("060102")
	if today != g.day {
		g.day = today
		g.seqs = map[string]int64{}
	}
	g.seqs[prefix]++
	return formatCode(prefix, today, g.seqs[prefix])
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}
