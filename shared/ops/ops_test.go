package ops

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/canonical/bootstream/shared/filter"
	"github.com/canonical/bootstream/shared/sign"
	"github.com/canonical/bootstream/shared/stream"
)

const (
	testContentID   = "com.ubuntu.maas:daily:v3:download"
	secondContentID = "com.ubuntu.maas:daily:v3:centos-download"
	testProductID   = "com.ubuntu.maas.daily:v3:boot:18.04:amd64:ga-18.04"
)

// faultySigner delegates to a real backend until its Nth signing call,
// which fails. Verification is never affected.
type faultySigner struct {
	inner  sign.Signer
	failAt int
	calls  int
}

func (f *faultySigner) bump() error {
	f.calls++
	if f.calls >= f.failAt {
		return fmt.Errorf("signing backend went away")
	}

	return nil
}

func (f *faultySigner) Sign(content []byte) ([]byte, error) {
	err := f.bump()
	if err != nil {
		return nil, err
	}

	return f.inner.Sign(content)
}

func (f *faultySigner) SignInline(content []byte) ([]byte, error) {
	err := f.bump()
	if err != nil {
		return nil, err
	}

	return f.inner.SignInline(content)
}

func (f *faultySigner) Verify(content []byte, signature []byte) error {
	return f.inner.Verify(content, signature)
}

func (f *faultySigner) VerifyInline(signed []byte) ([]byte, error) {
	return f.inner.VerifyInline(signed)
}

func writeArtifact(t *testing.T, baseDir string, relPath string, content string) stream.Item {
	t.Helper()

	absPath := filepath.Join(baseDir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(absPath), 0755))
	require.NoError(t, os.WriteFile(absPath, []byte(content), 0644))

	sum := sha256.Sum256([]byte(content))
	return stream.Item{
		Path:   relPath,
		SHA256: hex.EncodeToString(sum[:]),
		Size:   int64(len(content)),
	}
}

func testRequest(t *testing.T, baseDir string, versionID string) CreateRequest {
	t.Helper()

	kernel := writeArtifact(t, baseDir, "bionic/amd64/"+versionID+"/boot-kernel", "kernel "+versionID)
	kernel.FileType = "boot-kernel"

	initrd := writeArtifact(t, baseDir, "bionic/amd64/"+versionID+"/boot-initrd", "initrd "+versionID)
	initrd.FileType = "boot-initrd"

	squashfs := writeArtifact(t, baseDir, "bionic/amd64/"+versionID+"/squashfs", "squashfs "+versionID)
	squashfs.FileType = "squashfs"

	return CreateRequest{
		ContentID: testContentID,
		ProductID: testProductID,
		Attributes: map[string]string{
			"release": "bionic",
			"arch":    "amd64",
			"subarch": "ga-18.04",
		},
		VersionID: versionID,
		Items: map[string]stream.Item{
			"boot-kernel": kernel,
			"boot-initrd": initrd,
			"squashfs":    squashfs,
		},
	}
}

// newTestEngine builds a signed one-product, one-version stream in a fresh
// temporary directory and returns an engine over it.
func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()

	baseDir := t.TempDir()

	signer, err := sign.NewEd25519()
	require.NoError(t, err)

	s, err := stream.LoadOrInit(baseDir)
	require.NoError(t, err)

	engine := NewEngine(s, signer)

	res, err := engine.CreateVersion(testRequest(t, baseDir, "20191004"), true)
	require.NoError(t, err)
	require.Equal(t, 1, res.Mutations())

	return engine, baseDir
}

func reload(t *testing.T, engine *Engine, baseDir string) *Engine {
	t.Helper()

	s, err := stream.Load(baseDir)
	require.NoError(t, err)

	return NewEngine(s, engine.Signer)
}

func mustFilters(t *testing.T, expressions ...string) *filter.ClauseSet {
	t.Helper()

	set, err := filter.Parse(expressions)
	require.NoError(t, err)
	return set
}

func TestCreateVersionBootstrapsTree(t *testing.T) {
	engine, baseDir := newTestEngine(t)

	// The tree is complete: index, product file, both signed forms each.
	for _, relPath := range []string{
		"streams/v1/index.json",
		"streams/v1/index.json.gpg",
		"streams/v1/index.sjson",
		"streams/v1/" + testContentID + ".json",
		"streams/v1/" + testContentID + ".json.gpg",
		"streams/v1/" + testContentID + ".sjson",
	} {
		_, err := os.Stat(filepath.Join(baseDir, relPath))
		require.NoError(t, err, relPath)
	}

	engine = reload(t, engine, baseDir)
	doc := engine.Stream.Products[testContentID]
	require.NotNil(t, doc)
	require.Equal(t, stream.DefaultDataType, doc.DataType)
	require.Len(t, doc.Products[testProductID].Versions["20191004"].Items, 3)

	findings, err := engine.VerifyStream(true)
	require.NoError(t, err)
	require.Empty(t, findings)
}

func TestCreateVersionUnknownProduct(t *testing.T) {
	engine, baseDir := newTestEngine(t)

	req := testRequest(t, baseDir, "20191005")
	req.ProductID = "com.ubuntu.maas.daily:v3:boot:20.04:amd64:ga-20.04"
	req.Attributes = nil

	_, err := engine.CreateVersion(req, true)
	require.ErrorAs(t, err, &UnknownProductError{})
}

func TestCreateVersionReplacesWholeVersion(t *testing.T) {
	engine, baseDir := newTestEngine(t)

	// Rebuild 20191004 with a single item; the old items must not survive.
	req := testRequest(t, baseDir, "20191004")
	delete(req.Items, "boot-initrd")
	delete(req.Items, "squashfs")

	res, err := engine.CreateVersion(req, true)
	require.NoError(t, err)
	require.Equal(t, "replaced existing version", res.Decisions[0].Detail)

	engine = reload(t, engine, baseDir)
	items := engine.Stream.Products[testContentID].Products[testProductID].Versions["20191004"].Items
	require.Len(t, items, 1)
	require.Contains(t, items, "boot-kernel")
}

func TestCreateVersionBadItemAborts(t *testing.T) {
	engine, baseDir := newTestEngine(t)

	indexBefore, err := os.ReadFile(filepath.Join(baseDir, stream.IndexPath))
	require.NoError(t, err)

	req := testRequest(t, baseDir, "20191005")
	item := req.Items["squashfs"]
	item.SHA256 = "0000000000000000000000000000000000000000000000000000000000000000"
	req.Items["squashfs"] = item

	_, err = engine.CreateVersion(req, true)
	require.Error(t, err)

	// Planning failed before any write.
	indexAfter, err := os.ReadFile(filepath.Join(baseDir, stream.IndexPath))
	require.NoError(t, err)
	require.Equal(t, indexBefore, indexAfter)

	engine = reload(t, engine, baseDir)
	require.NotContains(t, engine.Stream.Products[testContentID].Products[testProductID].Versions, "20191005")
}

func TestCopyVersion(t *testing.T) {
	engine, baseDir := newTestEngine(t)

	res, err := engine.CopyVersion("20191004", "stable", mustFilters(t), true)
	require.NoError(t, err)
	require.Equal(t, 1, res.Mutations())
	require.Equal(t, []string{testContentID}, res.Changed)
	require.Equal(t, ActionAdded, res.Decisions[0].Action)

	engine = reload(t, engine, baseDir)
	prod := engine.Stream.Products[testContentID].Products[testProductID]
	require.Equal(t, prod.Versions["20191004"].Items, prod.Versions["stable"].Items)

	findings, err := engine.VerifyStream(true)
	require.NoError(t, err)
	require.Empty(t, findings)
}

func TestCopyVersionIsIdempotent(t *testing.T) {
	engine, baseDir := newTestEngine(t)

	_, err := engine.CopyVersion("20191004", "stable", mustFilters(t), true)
	require.NoError(t, err)

	res, err := engine.CopyVersion("20191004", "stable", mustFilters(t), true)
	require.NoError(t, err)
	require.Equal(t, 0, res.Mutations())
	require.Empty(t, res.Written)
	require.Equal(t, ActionSkippedExists, res.Decisions[0].Action)

	engine = reload(t, engine, baseDir)
	findings, err := engine.VerifyStream(false)
	require.NoError(t, err)
	require.Empty(t, findings)
}

func TestCopyVersionSkipsMissingSource(t *testing.T) {
	engine, _ := newTestEngine(t)

	res, err := engine.CopyVersion("20990101", "stable", mustFilters(t), true)
	require.NoError(t, err)
	require.Equal(t, 0, res.Mutations())
	require.Empty(t, res.Written)
	require.Equal(t, ActionSkippedAbsent, res.Decisions[0].Action)
}

func TestCopyVersionFiltered(t *testing.T) {
	engine, baseDir := newTestEngine(t)

	// A second product that the filter must leave alone.
	req := testRequest(t, baseDir, "20191004")
	req.ProductID = "com.ubuntu.maas.daily:v3:boot:18.04:arm64:ga-18.04"
	req.Attributes = map[string]string{"release": "bionic", "arch": "arm64", "subarch": "ga-18.04"}
	_, err := engine.CreateVersion(req, true)
	require.NoError(t, err)

	res, err := engine.CopyVersion("20191004", "stable", mustFilters(t, "arch=amd64"), true)
	require.NoError(t, err)
	require.Equal(t, 1, res.Mutations())
	require.Len(t, res.Decisions, 1)
	require.Equal(t, testProductID, res.Decisions[0].ProductID)

	engine = reload(t, engine, baseDir)
	doc := engine.Stream.Products[testContentID]
	require.Contains(t, doc.Products[testProductID].Versions, "stable")
	require.NotContains(t, doc.Products[req.ProductID].Versions, "stable")
}

func TestCopyVersionDryRun(t *testing.T) {
	engine, baseDir := newTestEngine(t)

	indexBefore, err := os.ReadFile(filepath.Join(baseDir, stream.IndexPath))
	require.NoError(t, err)

	res, err := engine.CopyVersion("20191004", "stable", mustFilters(t), false)
	require.NoError(t, err)
	require.Equal(t, 1, res.Mutations())
	require.Equal(t, []string{testContentID}, res.Changed)
	require.Empty(t, res.Written)

	// Nothing on disk changed and the loaded stream is untouched.
	indexAfter, err := os.ReadFile(filepath.Join(baseDir, stream.IndexPath))
	require.NoError(t, err)
	require.Equal(t, indexBefore, indexAfter)
	require.NotContains(t, engine.Stream.Products[testContentID].Products[testProductID].Versions, "stable")
}

func TestRemoveVersion(t *testing.T) {
	engine, baseDir := newTestEngine(t)

	before := engine.Stream.Products[testContentID].Copy()

	_, err := engine.CopyVersion("20191004", "stable", mustFilters(t), true)
	require.NoError(t, err)

	res, err := engine.RemoveVersion("stable", mustFilters(t), true)
	require.NoError(t, err)
	require.Equal(t, 1, res.Mutations())
	require.Equal(t, ActionRemoved, res.Decisions[0].Action)

	// Copy then remove is a round trip, modulo the file timestamp.
	engine = reload(t, engine, baseDir)
	require.Equal(t, before.Products, engine.Stream.Products[testContentID].Products)
}

func TestRemoveVersionAbsent(t *testing.T) {
	engine, _ := newTestEngine(t)

	res, err := engine.RemoveVersion("20990101", mustFilters(t), true)
	require.NoError(t, err)
	require.Equal(t, 0, res.Mutations())
	require.Empty(t, res.Written)
	require.Equal(t, ActionSkippedAbsent, res.Decisions[0].Action)
}

func TestRemoveVersionMayEmptyProduct(t *testing.T) {
	engine, baseDir := newTestEngine(t)

	res, err := engine.RemoveVersion("20191004", mustFilters(t), true)
	require.NoError(t, err)
	require.Equal(t, 1, res.Mutations())

	// The product stays declared even with no versions left.
	engine = reload(t, engine, baseDir)
	prod, ok := engine.Stream.Products[testContentID].Products[testProductID]
	require.True(t, ok)
	require.Empty(t, prod.Versions)
}

func TestApplySignerFaultKeepsFilesWhole(t *testing.T) {
	// Copying across two product files makes four signing calls (detached
	// then inline per file; the index entries don't change on copy). Fail
	// each one in turn and check that every product file on disk is either
	// wholly pre-operation or wholly post-operation, never a mix.
	for failAt := 1; failAt <= 4; failAt++ {
		t.Run(fmt.Sprintf("fail at signing call %d", failAt), func(t *testing.T) {
			engine, baseDir := newTestEngine(t)

			req := testRequest(t, baseDir, "20191004")
			req.ContentID = secondContentID
			_, err := engine.CreateVersion(req, true)
			require.NoError(t, err)

			cids := []string{testContentID, secondContentID}

			before := map[string][]byte{}
			for _, cid := range cids {
				data, err := os.ReadFile(filepath.Join(baseDir, stream.ProductFilePath(cid)))
				require.NoError(t, err)
				before[cid] = data
			}

			engine.Signer = &faultySigner{inner: engine.Signer, failAt: failAt}

			_, err = engine.CopyVersion("20191004", "stable", mustFilters(t), true)
			require.Error(t, err)

			for _, cid := range cids {
				data, err := os.ReadFile(filepath.Join(baseDir, stream.ProductFilePath(cid)))
				require.NoError(t, err)

				if bytes.Equal(data, before[cid]) {
					continue
				}

				// Not the old bytes, so it must be the complete new
				// document.
				doc := &stream.Products{}
				require.NoError(t, json.Unmarshal(data, doc))
				require.NoError(t, doc.Validate())
				require.Contains(t, doc.Products[testProductID].Versions, "stable")
			}

			// No staging leftovers; the tree still loads cleanly.
			_, err = stream.Load(baseDir)
			require.NoError(t, err)
		})
	}
}

func TestNoSignMutationPrunesStaleSignatures(t *testing.T) {
	engine, baseDir := newTestEngine(t)
	engine.Signer = nil

	_, err := engine.CopyVersion("20191004", "stable", mustFilters(t), true)
	require.NoError(t, err)

	// The rewritten product file's old signed forms are gone so they can't
	// vouch for stale content.
	for _, relPath := range []string{
		stream.ProductFilePath(testContentID) + ".gpg",
		"streams/v1/" + testContentID + ".sjson",
	} {
		_, err := os.Stat(filepath.Join(baseDir, relPath))
		require.True(t, os.IsNotExist(err), relPath)
	}

	// The index didn't change, so its signatures survive.
	_, err = os.Stat(filepath.Join(baseDir, stream.IndexPath+".gpg"))
	require.NoError(t, err)
}

func TestVerifyStreamDetectsTampering(t *testing.T) {
	engine, baseDir := newTestEngine(t)

	path := filepath.Join(baseDir, stream.ProductFilePath(testContentID))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	data[len(data)/2] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0644))

	findings, err := engine.VerifyStream(false)
	require.NoError(t, err)
	require.NotEmpty(t, findings)
}

func TestVerifyStreamDetectsMissingArtifact(t *testing.T) {
	engine, baseDir := newTestEngine(t)

	require.NoError(t, os.Remove(filepath.Join(baseDir, "bionic/amd64/20191004/squashfs")))

	findings, err := engine.VerifyStream(true)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	require.Equal(t, "bionic/amd64/20191004/squashfs", findings[0].Path)
}

func TestVerifyStreamRequiresSigner(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.Signer = nil

	_, err := engine.VerifyStream(false)
	require.ErrorIs(t, err, sign.ErrKeyringUnavailable)
}

func TestSignStream(t *testing.T) {
	baseDir := t.TempDir()

	// Build the tree unsigned first.
	s, err := stream.LoadOrInit(baseDir)
	require.NoError(t, err)

	unsigned := NewEngine(s, nil)
	_, err = unsigned.CreateVersion(testRequest(t, baseDir, "20191004"), true)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(baseDir, stream.IndexPath+".gpg"))
	require.True(t, os.IsNotExist(err))

	signer, err := sign.NewEd25519()
	require.NoError(t, err)

	s, err = stream.Load(baseDir)
	require.NoError(t, err)

	engine := NewEngine(s, signer)
	res, err := engine.SignStream()
	require.NoError(t, err)
	require.Contains(t, res.Written, stream.IndexPath+".gpg")
	require.Contains(t, res.Written, stream.ProductFilePath(testContentID)+".gpg")

	// The rebuilt index entry carries the product file's own stamp.
	doc := engine.Stream.Products[testContentID]
	require.Equal(t, doc.Updated, engine.Stream.Index.Index[testContentID].Updated)

	findings, err := engine.VerifyStream(false)
	require.NoError(t, err)
	require.Empty(t, findings)
}

func TestPreflight(t *testing.T) {
	engine, baseDir := newTestEngine(t)
	require.NoError(t, engine.Preflight())

	require.NoError(t, os.Remove(filepath.Join(baseDir, stream.IndexPath+".gpg")))
	require.Error(t, engine.Preflight())
}
