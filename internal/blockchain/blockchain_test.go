package blockchain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lasagna-chain/lasagna/internal/block"
	"github.com/lasagna-chain/lasagna/internal/blockchain"
	"github.com/lasagna-chain/lasagna/internal/core"
	"github.com/lasagna-chain/lasagna/internal/keys"
	"github.com/lasagna-chain/lasagna/internal/params"
)

func mustKey(t *testing.T) keys.SecretKey {
	t.Helper()
	sk, err := keys.Generate()
	require.NoError(t, err)
	return sk
}

func newTestChain(t *testing.T, roots ...keys.SecretKey) *blockchain.Blockchain {
	t.Helper()
	rootAccounts := make([]keys.PublicKey, len(roots))
	for i, sk := range roots {
		rootAccounts[i] = sk.PublicKey()
	}
	genesis := blockchain.ProduceGenesisBlock(rootAccounts, roots[0])
	bc, err := blockchain.Start(rootAccounts, genesis)
	require.NoError(t, err)
	return bc
}

// mineOne advances the clock one timeslot at a time until one of candidates
// wins, and applies the resulting block. Root accounts can stake
// immediately, so with a handful of candidates a winner always turns up
// within a few hundred timeslots.
func mineOne(t *testing.T, bc *blockchain.Blockchain, candidates []keys.SecretKey) {
	t.Helper()
	start := bc.CurrentTimeslot()
	for slot := start + 1; slot < start+10_000; slot++ {
		bc.AdvanceTimeslot(slot)
		for _, sk := range candidates {
			if b, won := bc.MakeBlock(sk); won {
				require.NoError(t, bc.AddBlock(b))
				return
			}
		}
	}
	t.Fatal("no candidate won within the timeslot budget")
}

func TestGenesisStartsAtDepthZero(t *testing.T) {
	sk1, sk2 := mustKey(t), mustKey(t)
	bc := newTestChain(t, sk1, sk2)

	require.EqualValues(t, 0, bc.BestPathHead().Depth)
	head, ok := bc.GetBlock(bc.BestPathHead())
	require.True(t, ok)
	require.True(t, head.IsGenesis())
}

func TestMiningExtendsBestPath(t *testing.T) {
	sk1, sk2 := mustKey(t), mustKey(t)
	bc := newTestChain(t, sk1, sk2)

	mineOne(t, bc, []keys.SecretKey{sk1, sk2})
	require.EqualValues(t, 1, bc.BestPathHead().Depth)
	require.NoError(t, bc.VerifyChain())
}

func TestMinedTransactionCannotBeRebuffered(t *testing.T) {
	sk1, sk2, sk3 := mustKey(t), mustKey(t), mustKey(t)
	bc := newTestChain(t, sk1, sk2, sk3)

	tx := core.NewTransaction([]keys.SecretKey{sk1}, []core.Instruction{
		{From: sk1.PublicKey(), To: sk3.PublicKey(), Amount: 500_000},
	}, 1)
	require.NoError(t, bc.AddTransaction(tx))

	head := bc.BestPathHead()
	mineOne(t, bc, []keys.SecretKey{sk1, sk2, sk3})
	require.NotEqual(t, head, bc.BestPathHead())

	// A transaction already mined can no longer be rebuffered: replay
	// protection on the dynamic ledger rejects it.
	require.Error(t, bc.AddTransaction(tx))
	require.NoError(t, bc.VerifyChain())
}

// TestOrphanBlockIsAdoptedOnceItsParentArrives simulates two peers observing
// the same two blocks in opposite order: the receiver sees depth 2 before
// depth 1. AddBlock must accept the depth-2 block without making it the
// head (it is stashed as an orphan), then integrate both blocks, in order,
// the moment depth 1 arrives.
func TestOrphanBlockIsAdoptedOnceItsParentArrives(t *testing.T) {
	sk1, sk2 := mustKey(t), mustKey(t)
	rootAccounts := []keys.PublicKey{sk1.PublicKey(), sk2.PublicKey()}
	genesis := blockchain.ProduceGenesisBlock(rootAccounts, sk1)

	source, err := blockchain.Start(rootAccounts, genesis)
	require.NoError(t, err)
	mineOne(t, source, []keys.SecretKey{sk1, sk2})
	depth1Ptr := source.BestPathHead()
	mineOne(t, source, []keys.SecretKey{sk1, sk2})
	depth2Ptr := source.BestPathHead()

	depth1Block, ok := source.GetBlock(depth1Ptr)
	require.True(t, ok)
	depth2Block, ok := source.GetBlock(depth2Ptr)
	require.True(t, ok)

	receiver, err := blockchain.Start(rootAccounts, genesis)
	require.NoError(t, err)
	receiver.AdvanceTimeslot(source.CurrentTimeslot())

	require.NoError(t, receiver.AddBlock(depth2Block))
	require.EqualValues(t, 0, receiver.BestPathHead().Depth, "orphan must not become the head")

	require.NoError(t, receiver.AddBlock(depth1Block))
	require.Equal(t, depth2Ptr, receiver.BestPathHead(), "both blocks should now be adopted")
	require.NoError(t, receiver.VerifyChain())
}

func TestNewlyPublishedAccountCannotImmediatelyStake(t *testing.T) {
	sk1, sk2, sk3 := mustKey(t), mustKey(t), mustKey(t)
	bc := newTestChain(t, sk1, sk2)

	tx := core.NewTransaction([]keys.SecretKey{sk1}, []core.Instruction{
		{From: sk1.PublicKey(), To: sk3.PublicKey(), Amount: params.MinimumStakeAmount},
	}, 1)
	require.NoError(t, bc.AddTransaction(tx))
	mineOne(t, bc, []keys.SecretKey{sk1, sk2})

	// sk3 just crossed the minimum stake threshold but was published at the
	// depth the transfer landed in, so it cannot win for another
	// 2*SEED_AGE blocks — it should never turn up as a winner among many
	// timeslots immediately afterward.
	start := bc.CurrentTimeslot()
	for slot := start + 1; slot < start+200; slot++ {
		bc.AdvanceTimeslot(slot)
		_, won := bc.MakeBlock(sk3)
		require.False(t, won, "newly published account should not be able to stake yet")
	}
}

func TestVerifyChainPassesAfterManyBlocks(t *testing.T) {
	sk1, sk2, sk3 := mustKey(t), mustKey(t), mustKey(t)
	bc := newTestChain(t, sk1, sk2, sk3)

	for i := 0; i < 25; i++ {
		mineOne(t, bc, []keys.SecretKey{sk1, sk2, sk3})
	}
	require.NoError(t, bc.VerifyChain())
}

// mineCandidate finds, for a single candidate key, the first block that wins
// starting from bc's current timeslot. Only bc's clock advances — the
// returned block is never applied to it.
func mineCandidate(t *testing.T, bc *blockchain.Blockchain, sk keys.SecretKey) block.Block {
	t.Helper()
	start := bc.CurrentTimeslot()
	for slot := start + 1; slot < start+20_000; slot++ {
		bc.AdvanceTimeslot(slot)
		if b, won := bc.MakeBlock(sk); won {
			return b
		}
	}
	t.Fatal("no block won within the timeslot budget")
	return block.Block{}
}

// mineSiblings advances bc's clock one timeslot at a time until it finds a
// slot where both skA and skB win, returning their two competing blocks —
// same depth, same parent, different signer and hash. Only bc's clock
// advances during the search; neither candidate is ever passed to AddBlock.
func mineSiblings(t *testing.T, bc *blockchain.Blockchain, skA, skB keys.SecretKey) (block.Block, block.Block) {
	t.Helper()
	start := bc.CurrentTimeslot()
	for slot := start + 1; slot < start+20_000; slot++ {
		bc.AdvanceTimeslot(slot)
		a, wonA := bc.MakeBlock(skA)
		b, wonB := bc.MakeBlock(skB)
		if wonA && wonB && a.Hash != b.Hash {
			return a, b
		}
	}
	t.Fatal("no sibling pair found within the timeslot budget")
	return block.Block{}, block.Block{}
}

// TestReorgAcrossSiblingsAdoptsStrictlyBetterBlock covers the sibling-reorg
// scenario: two competing blocks at the same depth arrive at a receiver, and
// whichever currently sits at the head must be displaced the moment a
// strictly-better sibling (per block.Compare) shows up, converging on
// exactly the state an observer who only ever saw the better sibling would
// have.
func TestReorgAcrossSiblingsAdoptsStrictlyBetterBlock(t *testing.T) {
	sk1, sk2 := mustKey(t), mustKey(t)
	rootAccounts := []keys.PublicKey{sk1.PublicKey(), sk2.PublicKey()}
	genesis := blockchain.ProduceGenesisBlock(rootAccounts, sk1)

	source, err := blockchain.Start(rootAccounts, genesis)
	require.NoError(t, err)
	a, b := mineSiblings(t, source, sk1, sk2)
	require.NotEqual(t, a.Hash, b.Hash)
	require.Equal(t, a.Depth, b.Depth)
	require.Equal(t, a.PrevHash, b.PrevHash)

	var worse, better block.Block
	if block.Compare(a, b) > 0 {
		worse, better = b, a
	} else {
		worse, better = a, b
	}
	require.Positive(t, block.Compare(better, worse))

	// An observer that only ever saw the better sibling: the state the
	// reorg below must converge to.
	direct, err := blockchain.Start(rootAccounts, genesis)
	require.NoError(t, err)
	direct.AdvanceTimeslot(better.Timeslot)
	require.NoError(t, direct.AddBlock(better))

	receiver, err := blockchain.Start(rootAccounts, genesis)
	require.NoError(t, err)
	receiver.AdvanceTimeslot(worse.Timeslot)
	receiver.AdvanceTimeslot(better.Timeslot)

	require.NoError(t, receiver.AddBlock(worse))
	require.Equal(t, worse.Ptr(), receiver.BestPathHead())

	require.NoError(t, receiver.AddBlock(better))
	require.Equal(t, better.Ptr(), receiver.BestPathHead(), "reorg must adopt the strictly-better sibling")

	require.Equal(t, direct.Balance(sk1.PublicKey()), receiver.Balance(sk1.PublicKey()))
	require.Equal(t, direct.Balance(sk2.PublicKey()), receiver.Balance(sk2.PublicKey()))
	require.NoError(t, receiver.VerifyChain())
}

// TestRollbackOfMinedTransferFullyRestoresLedgerAndMempool covers the
// simple-extend-then-rollback scenario for a block that moved funds: a
// transfer mined into the currently-adopted block must be fully undone —
// balances reverted, fee refunded, reward clawed back, and the transaction
// returned to the mempool — the instant a better competing block displaces
// it. This is the round-trip law: add_block then rollback must restore
// exactly the prior state.
func TestRollbackOfMinedTransferFullyRestoresLedgerAndMempool(t *testing.T) {
	sk1, sk2, sk3 := mustKey(t), mustKey(t), mustKey(t)
	rootAccounts := []keys.PublicKey{sk1.PublicKey(), sk2.PublicKey()}
	genesis := blockchain.ProduceGenesisBlock(rootAccounts, sk1)

	// "better" is mined off bare genesis, fixing an early timeslot that
	// nothing mined afterward can beat.
	betterSource, err := blockchain.Start(rootAccounts, genesis)
	require.NoError(t, err)
	better := mineCandidate(t, betterSource, sk2)

	// "worse" is mined starting no earlier than better's timeslot and
	// carries a transfer that must be fully undone once it is reorged away.
	worseSource, err := blockchain.Start(rootAccounts, genesis)
	require.NoError(t, err)
	worseSource.AdvanceTimeslot(better.Timeslot)
	tx := core.NewTransaction([]keys.SecretKey{sk1}, []core.Instruction{
		{From: sk1.PublicKey(), To: sk3.PublicKey(), Amount: 250_000},
	}, 1)
	require.NoError(t, worseSource.AddTransaction(tx))
	worse := mineCandidate(t, worseSource, sk1)

	require.Greater(t, worse.Timeslot, better.Timeslot)
	require.Positive(t, block.Compare(better, worse), "an earlier timeslot must win regardless of signer")

	receiver, err := blockchain.Start(rootAccounts, genesis)
	require.NoError(t, err)
	receiver.AdvanceTimeslot(worse.Timeslot)

	require.NoError(t, receiver.AddBlock(worse))
	require.Equal(t, worse.Ptr(), receiver.BestPathHead())
	require.EqualValues(t, 250_000, receiver.Balance(sk3.PublicKey()), "transfer must be applied while worse is head")

	require.NoError(t, receiver.AddBlock(better))
	require.Equal(t, better.Ptr(), receiver.BestPathHead(), "reorg must adopt the earlier-timeslot sibling")

	// An observer that only ever saw better, plus the same transfer sitting
	// unmined in its mempool, is the state the rollback above must converge
	// to exactly.
	direct, err := blockchain.Start(rootAccounts, genesis)
	require.NoError(t, err)
	direct.AdvanceTimeslot(better.Timeslot)
	require.NoError(t, direct.AddTransaction(tx))
	require.NoError(t, direct.AddBlock(better))

	require.Equal(t, direct.Balance(sk1.PublicKey()), receiver.Balance(sk1.PublicKey()))
	require.EqualValues(t, 0, receiver.Balance(sk3.PublicKey()), "rollback must undo the transfer entirely")
	require.Equal(t, direct.Balance(sk3.PublicKey()), receiver.Balance(sk3.PublicKey()))
	require.Equal(t, direct.Balance(sk2.PublicKey()), receiver.Balance(sk2.PublicKey()))
	require.Equal(t, direct.MempoolCount(), receiver.MempoolCount(), "rolled-back transfer must return to the mempool")
	require.EqualValues(t, 1, receiver.MempoolCount())

	require.NoError(t, receiver.VerifyChain())
}
