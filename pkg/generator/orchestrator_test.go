package generator_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-campaign-kit/pkg/adapters"
	"github.com/shouni/go-campaign-kit/pkg/asset"
	"github.com/shouni/go-campaign-kit/pkg/domain"
	"github.com/shouni/go-campaign-kit/pkg/generator"
	"github.com/shouni/go-campaign-kit/pkg/prompts"
	"github.com/shouni/go-campaign-kit/pkg/store"
	"github.com/shouni/go-campaign-kit/pkg/store/filestore"
)

var testPNG = []byte("\x89PNG\r\n\x1a\nscene")

type fakeImages struct {
	mu       sync.Mutex
	requests []adapters.ImageRequest
	errs     []error
	onCall   func()
}

func (f *fakeImages) Generate(_ context.Context, req adapters.ImageRequest) (*adapters.ImageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.onCall != nil {
		f.onCall()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &adapters.ImageResponse{Data: testPNG, MimeType: "image/png"}, nil
}

func (f *fakeImages) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeText struct {
	mu      sync.Mutex
	prompts []string
	errs    []error
	reply   string
}

func (f *fakeText) Complete(_ context.Context, _, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, userPrompt)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if f.reply == "" {
		return `"Steel flashes in the goblin-haunted woods."`, nil
	}
	return f.reply, nil
}

type fixture struct {
	repo      *store.Repository
	images    *fakeImages
	text      *fakeText
	orch      *generator.Orchestrator
	recap     *generator.RecapComposer
	assetDir  string
	campaign  domain.Campaign
	chapterID string
}

func fastRetry() generator.RetryPolicy {
	return generator.RetryPolicy{Attempts: 3, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	backend, err := filestore.New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	repo, err := store.NewRepository(backend)
	require.NoError(t, err)

	assetDir := filepath.Join(t.TempDir(), "assets")
	assets, err := asset.NewLocalStore(assetDir)
	require.NoError(t, err)

	pb, err := prompts.NewTextPromptBuilder()
	require.NoError(t, err)

	f := &fixture{repo: repo, images: &fakeImages{}, text: &fakeText{}, assetDir: assetDir}
	locker := store.NewLocker()
	f.orch, err = generator.NewOrchestrator(generator.Dependencies{
		Repository: repo,
		Assets:     assets,
		Prompts:    pb,
		Images:     f.images,
		Text:       f.text,
		Locker:     locker,
		Retry:      fastRetry(),
	})
	require.NoError(t, err)
	f.recap, err = generator.NewRecapComposer(repo, f.text, pb, locker, fastRetry())
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, c := range []domain.Character{
		domain.NewCharacter("thorin", "Thorin", "Fighter", "Stout dwarf with a braided red beard, dented steel plate armor", now),
		domain.NewCharacter("sildar", "Sildar", "Knight", "Grey-haired human knight, chainmail, blue tabard", now),
		domain.NewCharacter("elora", "Elora", "Ranger", "", now),
	} {
		require.NoError(t, repo.SaveCharacter(ctx, c))
	}

	f.chapterID = "ch-ambush"
	f.campaign = domain.Campaign{
		ID:           "lost-mines",
		Name:         "Lost Mines",
		Style:        "watercolor",
		Chapters:     []domain.Chapter{{ID: f.chapterID, Name: "Goblin Ambush"}},
		CharacterIDs: []string{"thorin", "sildar", "elora"},
		CreatedAt:    now,
	}
	require.NoError(t, repo.SaveCampaign(ctx, f.campaign))
	return f
}

func (f *fixture) request(prompt string, ids ...string) generator.GenerateRequest {
	return generator.GenerateRequest{
		CampaignID:   f.campaign.ID,
		ChapterID:    f.chapterID,
		Prompt:       prompt,
		CharacterIDs: ids,
	}
}

func (f *fixture) sceneCount(t *testing.T) int {
	t.Helper()
	scenes, err := f.repo.ListScenes(context.Background(), f.campaign.ID)
	require.NoError(t, err)
	return len(scenes)
}

func (f *fixture) imageFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(f.assetDir, asset.DefaultImageDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestOrchestrator_GenerateScene(t *testing.T) {
	ctx := context.Background()

	t.Run("挿絵とキャプションを持つシーンが作成され、章に追加されること", func(t *testing.T) {
		f := newFixture(t)

		scene, err := f.orch.GenerateScene(ctx, f.request("Goblins spring an ambush on the Triboar Trail", "sildar", "thorin"))
		require.NoError(t, err)

		assert.Equal(t, domain.SceneCaptioned, scene.State())
		assert.Equal(t, "Steel flashes in the goblin-haunted woods.", scene.CaptionText())
		assert.Equal(t, 1, scene.Revision)
		assert.Equal(t, int64(1), scene.Seq)
		assert.FileExists(t, scene.ImagePath)

		req := f.images.requests[0]
		assert.Less(t, strings.Index(req.Prompt, "Sildar"), strings.Index(req.Prompt, "Thorin"), "キャラクターは指定順に並ぶこと")
		assert.Contains(t, req.Prompt, "Goblins spring an ambush on the Triboar Trail")
		assert.Contains(t, req.Prompt, "watercolor")
		assert.Equal(t, prompts.SceneNegativePrompt, req.NegativePrompt)

		campaign, err := f.repo.GetCampaign(ctx, f.campaign.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{scene.ID}, campaign.Chapter(f.chapterID).SceneIDs)

		stored, err := f.repo.GetScene(ctx, scene.ID)
		require.NoError(t, err)
		assert.Equal(t, scene.CaptionText(), stored.CaptionText())
	})

	t.Run("アイデンティティがキャラクターに保存されること", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orch.GenerateScene(ctx, f.request("Thorin holds the line", "thorin"))
		require.NoError(t, err)

		c, err := f.repo.GetCharacter(ctx, "thorin")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(c.VisualIdentity, "Thorin:"))
		assert.NotEmpty(t, c.IdentityFingerprint)
	})

	failures := []struct {
		name      string
		kind      domain.ProviderErrorKind
		wantCalls int
	}{
		{"クォータ超過は再試行しないこと", domain.QuotaExceeded, 1},
		{"ポリシー拒否は再試行しないこと", domain.ContentPolicyRejected, 1},
		{"不明なエラーは再試行しないこと", domain.UnknownProviderError, 1},
		{"一時的エラーは上限まで再試行すること", domain.TransientProviderError, 3},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			perr := domain.NewProviderError(tt.kind, "fake", errors.New("provider failed"))
			f.images.errs = []error{perr, perr, perr, perr}

			_, err := f.orch.GenerateScene(ctx, f.request("The wagon burns", "thorin"))
			require.Error(t, err)

			kind, ok := domain.ProviderKindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.wantCalls, f.images.calls())

			var pe *domain.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, generator.OpGenerateScene, pe.Operation)
			assert.Contains(t, pe.UserMessage(), "No record was created")

			assert.Zero(t, f.sceneCount(t), "失敗時にシーンが作成されてはならない")
			assert.Empty(t, f.imageFiles(t))
			campaign, err := f.repo.GetCampaign(ctx, f.campaign.ID)
			require.NoError(t, err)
			assert.Empty(t, campaign.Chapter(f.chapterID).SceneIDs)
		})
	}

	t.Run("一時的エラーの後に成功すればシーンが作成されること", func(t *testing.T) {
		f := newFixture(t)
		f.images.errs = []error{domain.NewProviderError(domain.TransientProviderError, "fake", errors.New("503"))}

		_, err := f.orch.GenerateScene(ctx, f.request("The wagon burns", "thorin"))
		require.NoError(t, err)
		assert.Equal(t, 2, f.images.calls())
		assert.Equal(t, 1, f.sceneCount(t))
	})

	t.Run("キャプション失敗でもシーンは有効で Caption は nil", func(t *testing.T) {
		f := newFixture(t)
		f.text.errs = []error{domain.NewProviderError(domain.ContentPolicyRejected, "fake", errors.New("blocked"))}

		scene, err := f.orch.GenerateScene(ctx, f.request("The wagon burns", "thorin"))
		require.NoError(t, err)
		assert.Nil(t, scene.Caption)
		assert.Equal(t, domain.SceneIllustrated, scene.State())

		stored, err := f.repo.GetScene(ctx, scene.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.Caption)

		t.Run("キャプションだけを後から生成できること", func(t *testing.T) {
			captioned, err := f.orch.CaptionScene(ctx, scene.ID)
			require.NoError(t, err)
			assert.True(t, captioned.HasCaption())
			assert.Equal(t, scene.ImagePath, captioned.ImagePath)
			assert.Equal(t, scene.Revision, captioned.Revision)
		})
	})

	t.Run("キャンセル後に届いた結果は破棄されること", func(t *testing.T) {
		f := newFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		f.images.onCall = cancel

		_, err := f.orch.GenerateScene(cctx, f.request("The wagon burns", "thorin"))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, f.sceneCount(t))
		assert.Empty(t, f.imageFiles(t))
	})

	t.Run("説明の無いキャラクターでは生成できないこと", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orch.GenerateScene(ctx, f.request("Elora scouts ahead", "elora"))
		assert.ErrorIs(t, err, domain.ErrIdentityBuild)
		assert.Zero(t, f.images.calls())
		assert.Zero(t, f.sceneCount(t))
	})

	t.Run("不正な入力を拒否すること", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orch.GenerateScene(ctx, f.request("dup", "thorin", "thorin"))
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)

		_, err = f.orch.GenerateScene(ctx, f.request("   ", "thorin"))
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)

		require.NoError(t, f.repo.SaveCharacter(ctx, domain.NewCharacter("gundren", "Gundren", "", "dwarf merchant", time.Now())))
		_, err = f.orch.GenerateScene(ctx, f.request("unlinked", "gundren"))
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)

		req := f.request("missing chapter", "thorin")
		req.ChapterID = "nope"
		_, err = f.orch.GenerateScene(ctx, req)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		req = f.request("missing campaign", "thorin")
		req.CampaignID = "nope"
		_, err = f.orch.GenerateScene(ctx, req)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		assert.Zero(t, f.images.calls())
	})
}

func TestOrchestrator_RegenerateScene(t *testing.T) {
	ctx := context.Background()

	t.Run("新しい画像に置き換わり、リビジョンが上がり、古い画像が削除されること", func(t *testing.T) {
		f := newFixture(t)
		scene, err := f.orch.GenerateScene(ctx, f.request("Cragmaw cave entrance", "thorin"))
		require.NoError(t, err)

		f.text.reply = "A second look at the cave."
		again, err := f.orch.RegenerateScene(ctx, scene.ID)
		require.NoError(t, err)

		assert.Equal(t, 2, again.Revision)
		assert.NotEqual(t, scene.ImagePath, again.ImagePath)
		assert.FileExists(t, again.ImagePath)
		assert.NoFileExists(t, scene.ImagePath)
		assert.Equal(t, "A second look at the cave.", again.CaptionText())
		assert.Equal(t, scene.Seq, again.Seq)
		assert.Len(t, f.imageFiles(t), 1)
	})

	t.Run("失敗時は古い画像とキャプションが残ること", func(t *testing.T) {
		f := newFixture(t)
		scene, err := f.orch.GenerateScene(ctx, f.request("Cragmaw cave entrance", "thorin"))
		require.NoError(t, err)

		f.images.errs = []error{domain.NewProviderError(domain.QuotaExceeded, "fake", errors.New("quota"))}
		_, err = f.orch.RegenerateScene(ctx, scene.ID)
		kind, _ := domain.ProviderKindOf(err)
		assert.Equal(t, domain.QuotaExceeded, kind)

		stored, err := f.repo.GetScene(ctx, scene.ID)
		require.NoError(t, err)
		assert.Equal(t, scene.ImagePath, stored.ImagePath)
		assert.Equal(t, scene.CaptionText(), stored.CaptionText())
		assert.Equal(t, 1, stored.Revision)
		assert.FileExists(t, stored.ImagePath)
	})

	t.Run("再キャプションに失敗した場合は Caption が nil になること", func(t *testing.T) {
		f := newFixture(t)
		scene, err := f.orch.GenerateScene(ctx, f.request("Cragmaw cave entrance", "thorin"))
		require.NoError(t, err)

		f.text.errs = []error{domain.NewProviderError(domain.UnknownProviderError, "fake", errors.New("x"))}
		again, err := f.orch.RegenerateScene(ctx, scene.ID)
		require.NoError(t, err)
		assert.Nil(t, again.Caption)
		assert.Equal(t, 2, again.Revision)
	})

	t.Run("存在しないシーンは NotFound", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.orch.RegenerateScene(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestOrchestrator_CaptionScene_RequiresImage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	pending := domain.Scene{ID: "pending", CampaignID: f.campaign.ID, ChapterID: f.chapterID, Prompt: "p", Revision: 1}
	require.NoError(t, f.repo.SaveScene(ctx, pending))

	_, err := f.orch.CaptionScene(ctx, "pending")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
