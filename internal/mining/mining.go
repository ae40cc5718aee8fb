// Package mining runs the liquidity-mining competition: investors form
// groups by depositing DAI during a fixed window, groups are ranked on a
// bounded leaderboard by total deposits, and winning groups share monthly
// token rewards and one-time tier collectibles after the window closes.
//
// The engine never reads the wall clock; every operation takes the
// evaluation time in unix seconds.
package mining

import (
	"errors"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"CoverLedger/internal/decimal"
	"CoverLedger/internal/token"
)

var (
	// ErrNotInProgress is returned for investments outside the window.
	ErrNotInProgress = errors.New("The event has not started or has ended")

	// ErrZeroInvestment is returned for zero-amount deposits.
	ErrZeroInvestment = errors.New("Invested amount must be greater than zero")

	// ErrUnknownGroup is returned for group IDs never created.
	ErrUnknownGroup = errors.New("Group does not exist")

	// ErrNotMember is returned when claiming from a group one never
	// invested in.
	ErrNotMember = errors.New("Caller is not a member of the group")

	// ErrClaimLocked is returned while the post-competition lock holds.
	ErrClaimLocked = errors.New("Two weeks after the event end have not passed")

	// ErrNotOnLeaderboard is returned when distributing collectibles for
	// a group that did not place.
	ErrNotOnLeaderboard = errors.New("The group is not on the leaderboard")
)

// Tier collectible token IDs, best to worst.
const (
	TokenPlatinum uint64 = 1
	TokenGold     uint64 = 2
	TokenSilver   uint64 = 3
	TokenBronze   uint64 = 4
)

// RankReward maps an inclusive 1-based rank band to a monthly reward.
type RankReward struct {
	FromRank int
	ToRank   int
	Amount   *uint256.Int
}

// TierBand maps an inclusive 1-based in-group rank band to a collectible.
type TierBand struct {
	FromRank int
	ToRank   int
	TokenID  uint64
}

// Config fixes the competition window and payout tables.
type Config struct {
	Start            int64
	Duration         int64
	ClaimLock        int64
	LeaderboardSize  int
	GroupLeadersSize int
	MaxRewardMonths  uint64
	MonthlyRewards   []RankReward
	Tiers            []TierBand
}

// DefaultConfig returns the production competition: a two-week window, a
// two-week claim lock, top-ten leaderboard, and five months of rewards.
func DefaultConfig(start int64) Config {
	return Config{
		Start:            start,
		Duration:         2 * decimal.SecondsInWeek,
		ClaimLock:        2 * decimal.SecondsInWeek,
		LeaderboardSize:  10,
		GroupLeadersSize: 10,
		MaxRewardMonths:  5,
		MonthlyRewards: []RankReward{
			{FromRank: 1, ToRank: 1, Amount: decimal.Wei(150_000)},
			{FromRank: 2, ToRank: 5, Amount: decimal.Wei(100_000)},
			{FromRank: 6, ToRank: 10, Amount: decimal.Wei(50_000)},
		},
		Tiers: []TierBand{
			{FromRank: 1, ToRank: 1, TokenID: TokenPlatinum},
			{FromRank: 2, ToRank: 3, TokenID: TokenGold},
			{FromRank: 4, ToRank: 6, TokenID: TokenSilver},
			{FromRank: 7, ToRank: 10, TokenID: TokenBronze},
		},
	}
}

type group struct {
	id            uint64
	total         *uint256.Int
	contributions map[uuid.UUID]*uint256.Int
	leaders       []uuid.UUID
	monthsClaimed map[uuid.UUID]uint64
	badgeSent     map[uuid.UUID]bool
}

// Engine holds the competition state. All mutating calls are expected to
// arrive serialized, in deterministic order.
type Engine struct {
	cfg           Config
	account       uuid.UUID // engine identity; holds deposits, spends approvals
	rewardAccount uuid.UUID // funds monthly token rewards
	dai           token.Ledger
	reward        token.Ledger
	nft           *token.Collectibles
	groups        []*group
	leaderboard   []uint64
}

func NewEngine(cfg Config, account, rewardAccount uuid.UUID, dai, reward token.Ledger, nft *token.Collectibles) *Engine {
	return &Engine{
		cfg:           cfg,
		account:       account,
		rewardAccount: rewardAccount,
		dai:           dai,
		reward:        reward,
		nft:           nft,
	}
}

func (e *Engine) Account() uuid.UUID {
	return e.account
}

// InvestDAI deposits amount into groupID, or into a fresh group when
// groupID is zero. Group IDs are sequential starting at one. Returns the
// group invested into.
func (e *Engine) InvestDAI(caller uuid.UUID, groupID uint64, amount *uint256.Int, now int64) (uint64, error) {
	if now < e.cfg.Start || now >= e.cfg.Start+e.cfg.Duration {
		return 0, ErrNotInProgress
	}
	if amount.IsZero() {
		return 0, ErrZeroInvestment
	}
	var g *group
	if groupID != 0 {
		var err error
		g, err = e.group(groupID)
		if err != nil {
			return 0, err
		}
	}

	// Take the deposit before touching any group state, so a failed
	// transfer leaves group ids and counts exactly as they were.
	if err := e.dai.TransferFrom(e.account, caller, e.account, amount); err != nil {
		return 0, err
	}

	if g == nil {
		g = &group{
			id:            uint64(len(e.groups)) + 1,
			total:         uint256.NewInt(0),
			contributions: make(map[uuid.UUID]*uint256.Int),
			monthsClaimed: make(map[uuid.UUID]uint64),
			badgeSent:     make(map[uuid.UUID]bool),
		}
		e.groups = append(e.groups, g)
	}

	contribution, ok := g.contributions[caller]
	if !ok {
		contribution = uint256.NewInt(0)
		g.contributions[caller] = contribution
	}
	contribution.Add(contribution, amount)
	g.total.Add(g.total, amount)

	g.leaders = reinsert(g.leaders, caller, e.cfg.GroupLeadersSize, func(member uuid.UUID) *uint256.Int {
		return g.contributions[member]
	})
	e.leaderboard = reinsert(e.leaderboard, g.id, e.cfg.LeaderboardSize, func(id uint64) *uint256.Int {
		return e.groups[id-1].total
	})
	return g.id, nil
}

// reinsert removes key from the ranking if present, then walks from the
// top for the first strictly smaller score and inserts there, so equal
// scores keep arrival order. The ranking stays capped at size.
func reinsert[K comparable](ranked []K, key K, size int, score func(K) *uint256.Int) []K {
	for i, existing := range ranked {
		if existing == key {
			ranked = append(ranked[:i], ranked[i+1:]...)
			break
		}
	}
	pos := len(ranked)
	for i, existing := range ranked {
		if score(existing).Lt(score(key)) {
			pos = i
			break
		}
	}
	ranked = append(ranked, key)
	copy(ranked[pos+1:], ranked[pos:])
	ranked[pos] = key
	if len(ranked) > size {
		ranked = ranked[:size]
	}
	return ranked
}

func (e *Engine) group(id uint64) (*group, error) {
	if id == 0 || id > uint64(len(e.groups)) {
		return nil, ErrUnknownGroup
	}
	return e.groups[id-1], nil
}

// GroupCount returns how many groups were ever created.
func (e *Engine) GroupCount() uint64 {
	return uint64(len(e.groups))
}

// LeaderboardSize returns the number of groups currently ranked.
func (e *Engine) LeaderboardSize() int {
	return len(e.leaderboard)
}

// LeaderboardAt returns the group ID holding 0-based position i.
func (e *Engine) LeaderboardAt(i int) (uint64, error) {
	if i < 0 || i >= len(e.leaderboard) {
		return 0, ErrUnknownGroup
	}
	return e.leaderboard[i], nil
}

// GroupRank returns the 1-based leaderboard rank of a group.
func (e *Engine) GroupRank(groupID uint64) (int, bool) {
	for i, id := range e.leaderboard {
		if id == groupID {
			return i + 1, true
		}
	}
	return 0, false
}

// GroupTotal returns the total deposited into a group.
func (e *Engine) GroupTotal(groupID uint64) (*uint256.Int, error) {
	g, err := e.group(groupID)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(g.total), nil
}

// GroupLeaderAt returns the member at 0-based position i of the group's
// internal ranking.
func (e *Engine) GroupLeaderAt(groupID uint64, i int) (uuid.UUID, error) {
	g, err := e.group(groupID)
	if err != nil {
		return uuid.Nil, err
	}
	if i < 0 || i >= len(g.leaders) {
		return uuid.Nil, ErrNotMember
	}
	return g.leaders[i], nil
}

// Contribution returns what member deposited into the group.
func (e *Engine) Contribution(groupID uint64, member uuid.UUID) (*uint256.Int, error) {
	g, err := e.group(groupID)
	if err != nil {
		return nil, err
	}
	if c, ok := g.contributions[member]; ok {
		return new(uint256.Int).Set(c), nil
	}
	return uint256.NewInt(0), nil
}

func (e *Engine) end() int64 {
	return e.cfg.Start + e.cfg.Duration
}

func (e *Engine) unlock() int64 {
	return e.end() + e.cfg.ClaimLock
}

// payableMonths returns how many whole reward months have completed since
// the competition end, capped at the configured maximum.
func (e *Engine) payableMonths(now int64) uint64 {
	if now < e.unlock() {
		return 0
	}
	months := uint64((now - e.end()) / decimal.SecondsInMonth)
	if months > e.cfg.MaxRewardMonths {
		months = e.cfg.MaxRewardMonths
	}
	return months
}

func (e *Engine) monthlyReward(rank int) *uint256.Int {
	for _, band := range e.cfg.MonthlyRewards {
		if rank >= band.FromRank && rank <= band.ToRank {
			return band.Amount
		}
	}
	return nil
}

func (e *Engine) tierToken(rank int) (uint64, bool) {
	for _, band := range e.cfg.Tiers {
		if rank >= band.FromRank && rank <= band.ToRank {
			return band.TokenID, true
		}
	}
	return 0, false
}

// CheckAvailableReward reports whether caller has an unclaimed reward in
// the group at the given time. It never errors; every failure mode is
// simply "nothing available".
func (e *Engine) CheckAvailableReward(caller uuid.UUID, groupID uint64, now int64) bool {
	g, err := e.group(groupID)
	if err != nil {
		return false
	}
	if _, ok := g.contributions[caller]; !ok {
		return false
	}
	rank, ok := e.GroupRank(groupID)
	if !ok {
		return false
	}
	if e.monthlyReward(rank) == nil {
		return false
	}
	return e.payableMonths(now) > g.monthsClaimed[caller]
}

// RewardFromGroup pays caller its proportional share of the group's
// monthly rewards for every completed month not yet claimed. A group off
// the leaderboard pays zero without error.
func (e *Engine) RewardFromGroup(caller uuid.UUID, groupID uint64, now int64) (*uint256.Int, error) {
	g, err := e.group(groupID)
	if err != nil {
		return nil, err
	}
	contribution, ok := g.contributions[caller]
	if !ok {
		return nil, ErrNotMember
	}
	if now < e.unlock() {
		return nil, ErrClaimLocked
	}
	rank, ranked := e.GroupRank(groupID)
	if !ranked {
		return uint256.NewInt(0), nil
	}
	monthly := e.monthlyReward(rank)
	if monthly == nil {
		return uint256.NewInt(0), nil
	}
	months := e.payableMonths(now)
	claimed := g.monthsClaimed[caller]
	if months <= claimed {
		return uint256.NewInt(0), nil
	}
	owed, err := decimal.Mul(monthly, uint256.NewInt(months-claimed))
	if err != nil {
		return nil, err
	}
	share, err := decimal.MulDiv(owed, contribution, g.total)
	if err != nil {
		return nil, err
	}
	if !share.IsZero() {
		if err := e.reward.Transfer(e.rewardAccount, caller, share); err != nil {
			return nil, err
		}
	}
	g.monthsClaimed[caller] = months
	return share, nil
}

// DistributeNFT mints tier collectibles to the group's ranked members,
// once per member. The group must have placed on the leaderboard.
func (e *Engine) DistributeNFT(groupID uint64, now int64) error {
	g, err := e.group(groupID)
	if err != nil {
		return err
	}
	if now < e.unlock() {
		return ErrClaimLocked
	}
	if _, ranked := e.GroupRank(groupID); !ranked {
		return ErrNotOnLeaderboard
	}
	return e.distribute(g)
}

// DistributeAllNFT mints tier collectibles for every leaderboard group.
func (e *Engine) DistributeAllNFT(now int64) error {
	if now < e.unlock() {
		return ErrClaimLocked
	}
	for _, id := range e.leaderboard {
		if err := e.distribute(e.groups[id-1]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) distribute(g *group) error {
	for i, member := range g.leaders {
		tokenID, ok := e.tierToken(i + 1)
		if !ok || g.badgeSent[member] {
			continue
		}
		if err := e.nft.MintBadge(member, tokenID, 1); err != nil {
			return err
		}
		g.badgeSent[member] = true
	}
	return nil
}
