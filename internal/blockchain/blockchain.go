// Package blockchain ties every other component together into the single
// mutable structure the consensus actor owns: the block tree, the two
// ledgers it maintains, the orphan pool, and the mempool.
package blockchain

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lasagna-chain/lasagna/internal/block"
	"github.com/lasagna-chain/lasagna/internal/core"
	"github.com/lasagna-chain/lasagna/internal/draw"
	"github.com/lasagna-chain/lasagna/internal/keys"
	"github.com/lasagna-chain/lasagna/internal/ledger"
	"github.com/lasagna-chain/lasagna/internal/mempool"
	"github.com/lasagna-chain/lasagna/internal/nodeerrors"
	"github.com/lasagna-chain/lasagna/internal/params"
	"github.com/lasagna-chain/lasagna/internal/types"
)

// Blockchain owns the block tree and the dynamic/static ledger pair. It is
// meant to be owned by a single actor goroutine — see cmd/lasagnad — and
// requires no internal locking.
type Blockchain struct {
	blocks       []map[types.Hash]block.Block
	bestPath     []types.BlockPtr
	dynamic      *ledger.Ledger
	static       *ledger.Ledger
	staticIndex  int64 // best_path index static currently reflects
	rootAccounts []keys.PublicKey
	orphans      map[types.Hash][]block.Block
	mempool      *mempool.Mempool
	genesis      block.Block
	currentSlot  types.Timeslot

	log zerolog.Logger
}

// ProduceGenesisBlock builds the depth-0 block for rootAccounts, signed by
// anySk. The genesis signer is not consensus-critical — every peer
// recomputes the same genesis hash from root_accounts alone.
func ProduceGenesisBlock(rootAccounts []keys.PublicKey, anySk keys.SecretKey) block.Block {
	genesisHash := block.GenesisHash(rootAccounts)
	seed := draw.Seed{BlockPtr: types.BlockPtr{Hash: genesisHash, Depth: 0}}
	return block.New(anySk, 0, genesisHash, 0, nil, seed)
}

// Start initializes a Blockchain from rootAccounts and a matching genesis
// block: every root account is rewarded with params.RootAmount, and the
// static ledger starts out equal to the dynamic ledger.
func Start(rootAccounts []keys.PublicKey, genesis block.Block) (*Blockchain, error) {
	if err := genesis.VerifyGenesis(rootAccounts); err != nil {
		return nil, fmt.Errorf("invalid genesis block: %w", err)
	}

	dyn := ledger.New(rootAccounts)
	for _, ra := range rootAccounts {
		dyn.RewardWinner(ra, params.RootAmount)
	}

	bc := &Blockchain{
		blocks:       []map[types.Hash]block.Block{{genesis.Hash: genesis}},
		bestPath:     []types.BlockPtr{genesis.Ptr()},
		dynamic:      dyn,
		static:       dyn.Clone(),
		staticIndex:  0,
		rootAccounts: append([]keys.PublicKey(nil), rootAccounts...),
		orphans:      make(map[types.Hash][]block.Block),
		mempool:      mempool.New(),
		genesis:      genesis,
		log:          log.With().Str("component", "blockchain").Logger(),
	}
	return bc, nil
}

// BestPathHead returns the BlockPtr of the current chain head.
func (bc *Blockchain) BestPathHead() types.BlockPtr {
	return bc.bestPath[len(bc.bestPath)-1]
}

// CurrentTimeslot returns the latest timeslot observed via AdvanceTimeslot.
func (bc *Blockchain) CurrentTimeslot() types.Timeslot {
	return bc.currentSlot
}

// AdvanceTimeslot records the clock collaborator's latest NewTimeslot
// notification. It never blocks and performs no I/O.
func (bc *Blockchain) AdvanceTimeslot(t types.Timeslot) {
	if t > bc.currentSlot {
		bc.currentSlot = t
	}
}

func (bc *Blockchain) blockAtDepth(depth int64, hash types.Hash) (block.Block, bool) {
	if depth < 0 || depth >= int64(len(bc.blocks)) {
		return block.Block{}, false
	}
	b, ok := bc.blocks[depth][hash]
	return b, ok
}

func (bc *Blockchain) blockAtPath(index int64) block.Block {
	ptr := bc.bestPath[index]
	b, _ := bc.blockAtDepth(ptr.Depth, ptr.Hash)
	return b
}

// GetBlock looks up a block by pointer.
func (bc *Blockchain) GetBlock(ptr types.BlockPtr) (block.Block, bool) {
	return bc.blockAtDepth(ptr.Depth, ptr.Hash)
}

// Balance reports account's balance on the dynamic ledger, i.e. as of the
// current chain head.
func (bc *Blockchain) Balance(account keys.PublicKey) uint64 {
	return bc.dynamic.Balance(account)
}

// MempoolCount reports how many transactions are currently buffered for
// inclusion in a future block.
func (bc *Blockchain) MempoolCount() int {
	return bc.mempool.Count()
}

func calculateReward(b block.Block) uint64 {
	return uint64(len(b.Transactions))*params.TransactionFee + params.BlockReward
}

// AddTransaction validates tx against the dynamic ledger and, if accepted,
// buffers it for inclusion in a future block.
func (bc *Blockchain) AddTransaction(tx core.Transaction) error {
	if err := tx.VerifySignatures(); err != nil {
		return err
	}
	if err := bc.dynamic.IsTransactionValid(tx); err != nil {
		return err
	}
	return bc.mempool.Add(tx)
}

// checkDraw verifies a draw's own signature and value, that its signer can
// currently stake, and that it actually won its timeslot. This folds
// together every draw validity check (signature, value, stakability,
// winning predicate) into the single gate AddBlock and MakeBlock both use.
func checkDraw(l *ledger.Ledger, d draw.Draw, atDepth int64) error {
	if err := d.Verify(); err != nil {
		return fmt.Errorf("%w: %w", nodeerrors.ErrBadSignature, err)
	}
	if !l.CanStake(d.SignedBy, atDepth) {
		return fmt.Errorf("%w: %s cannot stake at depth %d", nodeerrors.ErrNotWinner, d.SignedBy, atDepth)
	}
	if !draw.IsWinner(d.Value, l.Balance(d.SignedBy), l.TotalMoney()) {
		return nodeerrors.ErrNotWinner
	}
	return nil
}

// checkSeed validates a candidate block's declared seed against history:
// before SeedAge blocks exist the genesis seed is the only valid one,
// afterwards the seed must name the block exactly SeedAge behind.
func (bc *Blockchain) checkSeed(b block.Block) error {
	if b.Depth < params.SeedAge {
		if b.Draw.Seed != bc.genesis.Draw.Seed {
			return fmt.Errorf("%w: expected genesis seed below depth %d", nodeerrors.ErrBadSeed, params.SeedAge)
		}
		return nil
	}
	want := bc.bestPath[b.Depth-params.SeedAge]
	if b.Draw.Seed.BlockPtr != want {
		return fmt.Errorf("%w: expected seed %s, got %s", nodeerrors.ErrBadSeed, want, b.Draw.Seed.BlockPtr)
	}
	return nil
}

// CanBlockBeAdded reports whether b may be accepted: its own signature and
// transactions must verify, its seed and timeslot must be consistent with
// history, and its draw must have actually won.
func (bc *Blockchain) CanBlockBeAdded(b block.Block) error {
	if err := b.VerifySignature(); err != nil {
		return err
	}
	for _, tx := range b.Transactions {
		if err := bc.dynamic.IsTransactionValid(tx); err != nil {
			return err
		}
	}
	if err := bc.checkSeed(b); err != nil {
		return err
	}
	if b.Timeslot > bc.currentSlot {
		return fmt.Errorf("%w: block timeslot %d is ahead of current timeslot %d", nodeerrors.ErrBadTimeslot, b.Timeslot, bc.currentSlot)
	}
	if parent, ok := bc.blockAtDepth(b.Depth-1, b.PrevHash); ok {
		if b.Timeslot <= parent.Timeslot {
			return fmt.Errorf("%w: block timeslot %d does not exceed parent timeslot %d", nodeerrors.ErrBadTimeslot, b.Timeslot, parent.Timeslot)
		}
	}

	ledgerAtDepth, err := bc.staticLedgerAt(b.Depth)
	if err != nil {
		return err
	}
	return checkDraw(ledgerAtDepth, b.Draw, b.Depth)
}

// AddBlock attempts to integrate b into the tree. Per the accept-on-stash
// contract: a block whose parent is not yet locally known is stashed in the
// orphan pool and AddBlock still returns nil — only an outright-invalid
// block (failing CanBlockBeAdded) is an error.
func (bc *Blockchain) AddBlock(b block.Block) error {
	if err := bc.CanBlockBeAdded(b); err != nil {
		return err
	}

	if b.Depth > 0 {
		if _, ok := bc.blockAtDepth(b.Depth-1, b.PrevHash); !ok {
			bc.orphans[b.PrevHash] = append(bc.orphans[b.PrevHash], b)
			bc.log.Debug().Str("hash", b.Hash.String()).Msg("stashed orphan block")
			return nil
		}
	}

	bc.growTo(b.Depth)
	bc.blocks[b.Depth][b.Hash] = b

	head := bc.BestPathHead()
	parentPtr := types.BlockPtr{Hash: b.PrevHash, Depth: b.Depth - 1}

	switch {
	case head == parentPtr:
		if err := bc.extend(b); err != nil {
			return err
		}
	default:
		if headBlock, ok := bc.blockAtDepth(head.Depth, head.Hash); ok && block.Compare(b, headBlock) > 0 {
			if err := bc.rollback(head, b.Ptr()); err != nil {
				return err
			}
		}
		// Otherwise the block is stored but does not change the head.
	}

	if waiting, ok := bc.orphans[b.Hash]; ok {
		delete(bc.orphans, b.Hash)
		for _, orphan := range waiting {
			if err := bc.AddBlock(orphan); err != nil {
				bc.log.Warn().Err(err).Str("hash", orphan.Hash.String()).Msg("previously stashed orphan rejected on integration")
			}
		}
	}

	bc.updateStaticLedger()
	return nil
}

func (bc *Blockchain) growTo(depth int64) {
	for int64(len(bc.blocks)) <= depth {
		bc.blocks = append(bc.blocks, make(map[types.Hash]block.Block))
	}
}

func (bc *Blockchain) extend(b block.Block) error {
	for _, tx := range b.Transactions {
		bc.mempool.Remove(tx.Hash)
	}
	for _, tx := range b.Transactions {
		if err := bc.dynamic.ProcessTransaction(tx, b.Depth); err != nil {
			return fmt.Errorf("applying block %s: %w", b.Hash, err)
		}
	}
	bc.dynamic.RewardWinner(b.Draw.SignedBy, calculateReward(b))
	bc.bestPath = append(bc.bestPath, b.Ptr())
	bc.log.Info().Str("hash", b.Hash.String()).Int64("depth", b.Depth).Msg("extended chain")
	return nil
}

// rollback reorganizes the chain from ptr `from` (the current head) to ptr
// `to`: it unwinds from down to their common ancestor, then reapplies the
// path from the ancestor up to `to`.
func (bc *Blockchain) rollback(from, to types.BlockPtr) error {
	common, err := bc.findCommonAncestor(from, to)
	if err != nil {
		return err
	}

	for bc.BestPathHead() != common {
		if err := bc.rollbackBlock(bc.BestPathHead()); err != nil {
			return err
		}
	}

	var forward []types.BlockPtr
	for cur := to; cur != common; {
		forward = append(forward, cur)
		parentBlock, ok := bc.blockAtDepth(cur.Depth-1, bc.parentHashOf(cur))
		if !ok {
			return nodeerrors.ErrUnknownParent
		}
		cur = parentBlock.Ptr()
	}
	for i := len(forward) - 1; i >= 0; i-- {
		b, ok := bc.blockAtDepth(forward[i].Depth, forward[i].Hash)
		if !ok {
			return nodeerrors.ErrUnknownParent
		}
		if err := bc.extend(b); err != nil {
			return err
		}
	}

	bc.log.Info().Str("from", from.Hash.String()).Str("to", to.Hash.String()).Msg("reorganized chain")
	return nil
}

func (bc *Blockchain) parentHashOf(ptr types.BlockPtr) types.Hash {
	b, ok := bc.blockAtDepth(ptr.Depth, ptr.Hash)
	if !ok {
		return types.Hash{}
	}
	return b.PrevHash
}

// findCommonAncestor walks from and to toward the root via prev_hash,
// equalizing depth first and then stepping together, until they coincide.
func (bc *Blockchain) findCommonAncestor(from, to types.BlockPtr) (types.BlockPtr, error) {
	a, b := from, to
	for a.Depth > b.Depth {
		parent, ok := bc.blockAtDepth(a.Depth, a.Hash)
		if !ok {
			return types.BlockPtr{}, nodeerrors.ErrNoCommonAncestor
		}
		a = types.BlockPtr{Hash: parent.PrevHash, Depth: a.Depth - 1}
	}
	for b.Depth > a.Depth {
		parent, ok := bc.blockAtDepth(b.Depth, b.Hash)
		if !ok {
			return types.BlockPtr{}, nodeerrors.ErrNoCommonAncestor
		}
		b = types.BlockPtr{Hash: parent.PrevHash, Depth: b.Depth - 1}
	}
	for a != b {
		if a.Depth == 0 {
			return types.BlockPtr{}, nodeerrors.ErrNoCommonAncestor
		}
		pa, ok := bc.blockAtDepth(a.Depth, a.Hash)
		if !ok {
			return types.BlockPtr{}, nodeerrors.ErrNoCommonAncestor
		}
		pb, ok := bc.blockAtDepth(b.Depth, b.Hash)
		if !ok {
			return types.BlockPtr{}, nodeerrors.ErrNoCommonAncestor
		}
		a = types.BlockPtr{Hash: pa.PrevHash, Depth: a.Depth - 1}
		b = types.BlockPtr{Hash: pb.PrevHash, Depth: b.Depth - 1}
	}
	return a, nil
}

// rollbackBlock requires ptr to be the current head: it pops the head,
// undoes its transactions and reward on the dynamic ledger, reinserts its
// transactions into the mempool, and removes the block from the tree.
func (bc *Blockchain) rollbackBlock(ptr types.BlockPtr) error {
	if bc.BestPathHead() != ptr {
		return fmt.Errorf("rollback requires ptr to be the current head")
	}
	b, ok := bc.blockAtDepth(ptr.Depth, ptr.Hash)
	if !ok {
		return nodeerrors.ErrUnknownParent
	}

	bc.bestPath = bc.bestPath[:len(bc.bestPath)-1]

	for i := len(b.Transactions) - 1; i >= 0; i-- {
		tx := b.Transactions[i]
		bc.dynamic.RollbackTransaction(tx, ptr.Depth)
		if err := bc.mempool.Add(tx); err != nil {
			bc.log.Debug().Str("hash", tx.Hash.String()).Msg("rolled-back transaction already buffered")
		}
	}
	bc.dynamic.RollbackReward(b.Draw.SignedBy, calculateReward(b))

	delete(bc.blocks[ptr.Depth], ptr.Hash)
	bc.updateStaticLedger()
	return nil
}

// staticLedgerAt returns the ledger as of best_path[max(0, dynamicDepth -
// SeedAge)], computed by replaying forward or backward from the currently
// stored static ledger along the current best path. It does not mutate the
// stored static ledger — callers evaluating a not-yet-accepted candidate
// need a throwaway result.
func (bc *Blockchain) staticLedgerAt(dynamicDepth int64) (*ledger.Ledger, error) {
	target := dynamicDepth - params.SeedAge
	if target < 0 {
		target = 0
	}
	if target >= int64(len(bc.bestPath)) {
		return nil, fmt.Errorf("static ledger target depth %d is beyond the known best path", target)
	}

	result := bc.static.Clone()
	cur := bc.staticIndex

	for cur > target {
		b := bc.blockAtPath(cur)
		rollbackLedgerBlock(result, b)
		cur--
	}
	for cur < target {
		cur++
		b := bc.blockAtPath(cur)
		if err := applyLedgerBlock(result, b); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func applyLedgerBlock(l *ledger.Ledger, b block.Block) error {
	for _, tx := range b.Transactions {
		if err := l.ProcessTransaction(tx, b.Depth); err != nil {
			return err
		}
	}
	l.RewardWinner(b.Draw.SignedBy, calculateReward(b))
	return nil
}

func rollbackLedgerBlock(l *ledger.Ledger, b block.Block) {
	for i := len(b.Transactions) - 1; i >= 0; i-- {
		l.RollbackTransaction(b.Transactions[i], b.Depth)
	}
	l.RollbackReward(b.Draw.SignedBy, calculateReward(b))
}

// updateStaticLedger recomputes the stored static ledger to reflect
// best_path[max(0, len(best_path) - SeedAge)], keeping reorg cost
// proportional to the distance moved rather than to chain length.
func (bc *Blockchain) updateStaticLedger() {
	updated, err := bc.staticLedgerAt(int64(len(bc.bestPath)))
	if err != nil {
		// Unreachable: len(best_path) is always within range by construction.
		bc.log.Error().Err(err).Msg("failed to update static ledger")
		return
	}
	target := int64(len(bc.bestPath)) - params.SeedAge
	if target < 0 {
		target = 0
	}
	bc.static = updated
	bc.staticIndex = target
}

// MakeBlock builds a candidate block for sk at the next depth, returning
// (block, true) only if sk's draw actually wins the slot.
func (bc *Blockchain) MakeBlock(sk keys.SecretKey) (block.Block, bool) {
	head := bc.BestPathHead()
	depth := head.Depth + 1
	timeslot := bc.currentSlot

	var seed draw.Seed
	if depth >= params.SeedAge {
		seed = draw.Seed{BlockPtr: bc.bestPath[depth-params.SeedAge]}
	} else {
		seed = bc.genesis.Draw.Seed
	}

	candidateDraw := draw.New(timeslot, seed, sk)

	ledgerAtDepth, err := bc.staticLedgerAt(depth)
	if err != nil {
		return block.Block{}, false
	}
	if err := checkDraw(ledgerAtDepth, candidateDraw, depth); err != nil {
		return block.Block{}, false
	}

	txs := bc.mempool.Snapshot()
	b := block.New(sk, timeslot, head.Hash, depth, txs, seed)
	return b, true
}

// essentialState is the subset of a Blockchain's state that VerifyChain
// compares: everything an independent replay from the same genesis must
// reproduce exactly.
type essentialState struct {
	BestPath []types.BlockPtr
	Dynamic  *ledger.Ledger
	Static   *ledger.Ledger
	Mempool  []types.Hash
}

func (bc *Blockchain) snapshotState() essentialState {
	hashes := make([]types.Hash, 0, bc.mempool.Count())
	for _, tx := range bc.mempool.Snapshot() {
		hashes = append(hashes, tx.Hash)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return string(hashes[i][:]) < string(hashes[j][:])
	})
	return essentialState{
		BestPath: bc.bestPath,
		Dynamic:  bc.dynamic,
		Static:   bc.static,
		Mempool:  hashes,
	}
}

// allKnownBlocks returns every block this chain has ever stored — best-path
// blocks, stored-but-losing alternates, and stashed orphans — sorted by
// depth so a from-genesis replay can apply them in an order AddBlock
// accepts.
func (bc *Blockchain) allKnownBlocks() []block.Block {
	var all []block.Block
	for _, atDepth := range bc.blocks {
		for _, b := range atDepth {
			all = append(all, b)
		}
	}
	for _, waiting := range bc.orphans {
		all = append(all, waiting...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Depth < all[j].Depth })
	return all
}

// VerifyChain independently replays every block this chain has ever seen,
// from the same genesis, into a fresh Blockchain, and deep-compares the
// result's essential state against this chain's own. A mismatch means this
// chain's incrementally-maintained state has drifted from what a full
// from-scratch replay would produce.
func (bc *Blockchain) VerifyChain() error {
	fresh, err := Start(bc.rootAccounts, bc.genesis)
	if err != nil {
		return fmt.Errorf("rebuilding from genesis: %w", err)
	}
	fresh.AdvanceTimeslot(bc.currentSlot)

	for _, b := range bc.allKnownBlocks() {
		if b.IsGenesis() {
			continue
		}
		if err := fresh.AddBlock(b); err != nil {
			return fmt.Errorf("replaying block %s at depth %d: %w", b.Hash, b.Depth, err)
		}
	}
	for _, tx := range bc.mempool.Snapshot() {
		if err := fresh.AddTransaction(tx); err != nil {
			return fmt.Errorf("replaying mempool transaction %s: %w", tx.Hash, err)
		}
	}

	live, replayed := bc.snapshotState(), fresh.snapshotState()
	if !reflect.DeepEqual(live, replayed) {
		return fmt.Errorf("replayed chain state diverges from live state:\n--- live ---\n%s\n--- replayed ---\n%s", spew.Sdump(live), spew.Sdump(replayed))
	}
	return nil
}
