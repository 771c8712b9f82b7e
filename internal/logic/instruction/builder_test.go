package instruction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registry-client-sol/internal/consts"
	"registry-client-sol/internal/logic/codec"
	"registry-client-sol/internal/logic/core"
	"registry-client-sol/internal/logic/pda"
	"registry-client-sol/internal/types"
)

var (
	testProgram   = consts.DefaultRegistryProgram
	testAuthority = types.PubkeyFromBase58("G8XnWUNznBctaJ6iGz39S5ZkZCjeaSHCEtyvpJEaBokQ")
	testOther     = types.PubkeyFromBase58("CDns6TVDnPXsZTxGmMz2PjVK6kM156yuutReTGBsp3to")
)

func TestBuild_Validation(t *testing.T) {
	_, err := Build(testProgram, []byte{0}, nil)
	assert.ErrorIs(t, err, core.ErrEmptyAccountRefs)

	_, err = Build(testProgram, []byte{0}, []AccountRef{
		{Pubkey: testAuthority, IsWritable: true},
	})
	assert.ErrorIs(t, err, core.ErrMissingSigner)

	_, err = Build(testProgram, []byte{0}, []AccountRef{
		{Pubkey: testAuthority, IsSigner: true},
		{Pubkey: testOther, IsWritable: true},
		{Pubkey: testOther, IsWritable: false},
	})
	assert.ErrorIs(t, err, core.ErrConflictingAccountRef)
	assert.True(t, core.IsLocal(err))
}

func TestBuild_IdenticalDuplicatesAllowed(t *testing.T) {
	op, err := Build(testProgram, []byte{1}, []AccountRef{
		{Pubkey: testAuthority, IsSigner: true},
		{Pubkey: testOther, IsWritable: true},
		{Pubkey: testOther, IsWritable: true},
	})
	require.NoError(t, err)
	assert.Len(t, op.Accounts, 3)
}

func TestBuild_CopiesInput(t *testing.T) {
	data := []byte{1, 2, 3}
	refs := []AccountRef{{Pubkey: testAuthority, IsSigner: true}}

	op, err := Build(testProgram, data, refs)
	require.NoError(t, err)

	data[0] = 9
	refs[0].Pubkey = testOther
	assert.Equal(t, []byte{1, 2, 3}, op.Data)
	assert.Equal(t, testAuthority, op.Accounts[0].Pubkey)
}

func TestBuildInitialize_Layout(t *testing.T) {
	op, err := BuildInitialize(InitializeParams{
		Program:   testProgram,
		Authority: testAuthority,
		Model:     "gtx-3080",
	})
	require.NoError(t, err)

	root, err := pda.NewDeriver(testProgram).StorageRoot(testAuthority)
	require.NoError(t, err)

	assert.Equal(t, testProgram, op.ProgramID)
	assert.Equal(t, []AccountRef{
		{Pubkey: testAuthority, IsSigner: true, IsWritable: false},
		{Pubkey: root.Pubkey, IsSigner: false, IsWritable: true},
		{Pubkey: consts.SystemProgram, IsSigner: false, IsWritable: true},
	}, op.Accounts)

	p, err := codec.Decode(op.Data)
	require.NoError(t, err)
	assert.Equal(t, codec.InitializePayload{Model: "gtx-3080"}, p)
}

func TestBuildInitialize_ExplicitOwner(t *testing.T) {
	op, err := BuildInitialize(InitializeParams{
		Program:   testProgram,
		Authority: testAuthority,
		Owner:     testOther,
		Model:     "x",
	})
	require.NoError(t, err)

	root, err := pda.NewDeriver(testProgram).StorageRoot(testOther)
	require.NoError(t, err)
	assert.Equal(t, root.Pubkey, op.Accounts[1].Pubkey)
}

func TestBuildRegister_Layout(t *testing.T) {
	op, err := BuildRegister(RegisterParams{
		Program:   testProgram,
		Authority: testAuthority,
		Model:     "m1",
		EntryKey:  "m1",
	})
	require.NoError(t, err)

	d := pda.NewDeriver(testProgram)
	root, err := d.StorageRoot(testAuthority)
	require.NoError(t, err)
	entry, err := d.Entry("m1", testAuthority)
	require.NoError(t, err)

	assert.Equal(t, []AccountRef{
		{Pubkey: testAuthority, IsSigner: true, IsWritable: false},
		{Pubkey: root.Pubkey, IsSigner: false, IsWritable: true},
		{Pubkey: entry.Pubkey, IsSigner: false, IsWritable: true},
		{Pubkey: consts.SystemProgram, IsSigner: false, IsWritable: true},
	}, op.Accounts)

	p, err := codec.Decode(op.Data)
	require.NoError(t, err)
	assert.Equal(t, codec.VariantRegister, p.Variant())
	assert.Equal(t, "m1", codec.ModelOf(p))
}

func TestBuildRegister_Rejects(t *testing.T) {
	_, err := BuildRegister(RegisterParams{
		Program: testProgram, Authority: testAuthority, Model: "m1", EntryKey: "m2",
	})
	assert.ErrorIs(t, err, core.ErrInconsistentEntryKey)

	_, err = BuildRegister(RegisterParams{
		Program: testProgram, Authority: testAuthority, Model: "",
	})
	assert.ErrorIs(t, err, core.ErrInvalidModel)

	_, err = BuildRegister(RegisterParams{
		Program: testProgram, Authority: testAuthority, Model: strings.Repeat("x", 33),
	})
	assert.ErrorIs(t, err, core.ErrSeedTooLong)
}

func TestOperation_ToInstruction(t *testing.T) {
	op, err := BuildRegister(RegisterParams{
		Program: testProgram, Authority: testAuthority, Model: "m1",
	})
	require.NoError(t, err)

	ix := op.ToInstruction()
	assert.Equal(t, testProgram.ToCommon(), ix.ProgramID)
	assert.Equal(t, op.Data, ix.Data)
	require.Len(t, ix.Accounts, len(op.Accounts))
	for i, meta := range ix.Accounts {
		assert.Equal(t, op.Accounts[i].Pubkey.ToCommon(), meta.PubKey)
		assert.Equal(t, op.Accounts[i].IsSigner, meta.IsSigner)
		assert.Equal(t, op.Accounts[i].IsWritable, meta.IsWritable)
	}
	assert.Equal(t, []types.Pubkey{testAuthority}, op.Signers())
}
