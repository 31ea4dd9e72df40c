package repository

import (
	"time"

	"github.com/google/uuid"

	drepo "TradePulse/internal/domain/repository"
)

// SystemClock is the wall-clock Clock implementation.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

var _ drepo.Clock = SystemClock{}

// UUIDGenerator mints random UUIDv4 identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

var _ drepo.IDGenerator = UUIDGenerator{}
