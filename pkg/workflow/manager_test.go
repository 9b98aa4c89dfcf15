package workflow_test

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
	"github.com/shouni/go-campaign-kit/pkg/identity"
	"github.com/shouni/go-campaign-kit/pkg/montage"
	"github.com/shouni/go-campaign-kit/pkg/prompts"
	"github.com/shouni/go-campaign-kit/pkg/publisher"
	"github.com/shouni/go-campaign-kit/pkg/store"
	"github.com/shouni/go-campaign-kit/pkg/store/filestore"
	"github.com/shouni/go-campaign-kit/pkg/workflow"
)

var testPNG = []byte("\x89PNG\r\n\x1a\nscene")

type stubImages struct{}

func (stubImages) Generate(context.Context, adapters.ImageRequest) (*adapters.ImageResponse, error) {
	return &adapters.ImageResponse{Data: testPNG, MimeType: "image/png"}, nil
}

type stubText struct {
	mu      sync.Mutex
	prompts []string
	errs    []error
	reply   string
}

func (s *stubText) Complete(_ context.Context, _, userPrompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, userPrompt)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if s.reply != "" {
		return s.reply, nil
	}
	return "The party stands ready.", nil
}

type env struct {
	mgr      *workflow.Manager
	repo     *store.Repository
	text     *stubText
	assetDir string
	export   string
}

// failingBackend は有効にした後、指定回目のキャンペーン保存かキャラクター削除を失敗させます。
type failingBackend struct {
	store.Backend

	mu             sync.Mutex
	armed          bool
	failCampaignAt int
	campaignSaves  int
	failCharDelete bool
}

var errBackend = errors.New("backend unavailable")

func (f *failingBackend) arm(failCampaignAt int, failCharDelete bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed, f.failCampaignAt, f.failCharDelete, f.campaignSaves = true, failCampaignAt, failCharDelete, 0
}

func (f *failingBackend) Save(ctx context.Context, kind store.Kind, id, parentID string, data []byte) error {
	f.mu.Lock()
	if f.armed && kind == store.KindCampaign {
		f.campaignSaves++
		if f.campaignSaves == f.failCampaignAt {
			f.mu.Unlock()
			return errBackend
		}
	}
	f.mu.Unlock()
	return f.Backend.Save(ctx, kind, id, parentID, data)
}

func (f *failingBackend) Delete(ctx context.Context, kind store.Kind, id string) error {
	f.mu.Lock()
	fail := f.armed && f.failCharDelete && kind == store.KindCharacter
	f.mu.Unlock()
	if fail {
		return errBackend
	}
	return f.Backend.Delete(ctx, kind, id)
}

func newEnv(t *testing.T, wrap ...func(store.Backend) store.Backend) *env {
	t.Helper()

	var backend store.Backend
	backend, err := filestore.New(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	for _, w := range wrap {
		backend = w(backend)
	}
	repo, err := store.NewRepository(backend)
	require.NoError(t, err)

	assetDir := filepath.Join(t.TempDir(), "assets")
	assets, err := asset.NewLocalStore(assetDir)
	require.NoError(t, err)

	pb, err := prompts.NewTextPromptBuilder()
	require.NoError(t, err)

	retry := generator.RetryPolicy{Attempts: 3, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	locker := store.NewLocker()
	ib := identity.NewBuilder()
	text := &stubText{}

	orch, err := generator.NewOrchestrator(generator.Dependencies{
		Repository: repo,
		Assets:     assets,
		Identity:   ib,
		Prompts:    pb,
		Images:     stubImages{},
		Text:       text,
		Locker:     locker,
		Retry:      retry,
	})
	require.NoError(t, err)
	recap, err := generator.NewRecapComposer(repo, text, pb, locker, retry)
	require.NoError(t, err)

	exportDir := filepath.Join(t.TempDir(), "exports")
	exporter, err := publisher.NewExporter(exportDir, nil, publisher.NewMarkdownRenderer(exportDir))
	require.NoError(t, err)

	mgr, err := workflow.New(workflow.ManagerArgs{
		Repository: repo,
		Assets:     assets,
		Locker:     locker,
		Identity:   ib,
		Scenes:     orch,
		Recap:      recap,
		Compiler:   montage.NewCompiler(),
		Exporter:   exporter,
		Text:       text,
		Prompts:    pb,
		Retry:      retry,
	})
	require.NoError(t, err)

	return &env{mgr: mgr, repo: repo, text: text, assetDir: assetDir, export: exportDir}
}

// party はキャラクター2人と章1つを持つキャンペーンを用意します。
func (e *env) party(t *testing.T) (domain.Campaign, domain.Chapter, domain.Character, domain.Character) {
	t.Helper()
	ctx := context.Background()

	thorin, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{
		Name: "Thorin", Role: "Fighter", Description: "Stout dwarf with a braided red beard, dented steel plate armor",
	})
	require.NoError(t, err)
	elora, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{
		Name: "Elora", Role: "Ranger", Description: "Lean half-elf archer, green hooded cloak, longbow",
	})
	require.NoError(t, err)

	c, err := e.mgr.CreateCampaign(ctx, workflow.CampaignInput{Name: "Lost Mines", Style: "watercolor"})
	require.NoError(t, err)
	ch, err := e.mgr.AddChapter(ctx, c.ID, "Goblin Ambush")
	require.NoError(t, err)
	for _, id := range []string{thorin.ID, elora.ID} {
		c, err = e.mgr.LinkCharacter(ctx, c.ID, id)
		require.NoError(t, err)
	}
	return c, ch, thorin, elora
}

func (e *env) scene(t *testing.T, c domain.Campaign, ch domain.Chapter, prompt string, ids ...string) domain.Scene {
	t.Helper()
	s, err := e.mgr.GenerateScene(context.Background(), generator.GenerateRequest{
		CampaignID:   c.ID,
		ChapterID:    ch.ID,
		Prompt:       prompt,
		CharacterIDs: ids,
	})
	require.NoError(t, err)
	return s
}

func writeImage(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, testPNG, 0o644))
	return p
}

func TestNew(t *testing.T) {
	t.Run("必須の依存が無い場合はエラー", func(t *testing.T) {
		_, err := workflow.New(workflow.ManagerArgs{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "必須です")
	})
}

func TestManager_Characters(t *testing.T) {
	ctx := context.Background()

	t.Run("説明文があればアイデンティティを構築する", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{
			Name: "  Thorin ", Role: "Fighter", Description: "Stout dwarf with a braided red beard",
		})
		require.NoError(t, err)

		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "Thorin", c.Name)
		assert.Equal(t, int64(domain.GetSeedFromName("Thorin")), c.Seed)
		assert.True(t, strings.HasPrefix(c.VisualIdentity, "Thorin:"))
		assert.NotEmpty(t, c.IdentityFingerprint)

		stored, err := e.mgr.GetCharacter(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.VisualIdentity, stored.VisualIdentity)
	})

	t.Run("説明文が空ならアイデンティティは空のまま", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{Name: "Elora"})
		require.NoError(t, err)
		assert.Empty(t, c.VisualIdentity)
	})

	t.Run("名前が空なら InvalidArgument", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{Name: "  "})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("参照画像はアセットとして取り込まれる", func(t *testing.T) {
		e := newEnv(t)
		src := writeImage(t, "elora.png")
		c, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{
			Name: "Elora", Description: "Half-elf archer", ReferenceImage: src,
		})
		require.NoError(t, err)

		assert.NotEqual(t, src, c.ReferenceImage)
		assert.True(t, strings.HasPrefix(c.ReferenceImage, e.assetDir))
		assert.FileExists(t, c.ReferenceImage)
	})

	t.Run("存在しない参照画像は InvalidArgument で何も保存しない", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{
			Name: "Elora", ReferenceImage: filepath.Join(t.TempDir(), "missing.png"),
		})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)

		list, err := e.mgr.ListCharacters(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("説明文を空にするとアイデンティティが消える", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{Name: "Thorin", Description: "Red beard"})
		require.NoError(t, err)
		require.NotEmpty(t, c.VisualIdentity)

		empty := ""
		c, err = e.mgr.UpdateCharacter(ctx, c.ID, workflow.CharacterPatch{Description: &empty})
		require.NoError(t, err)
		assert.Empty(t, c.VisualIdentity)
		assert.Empty(t, c.IdentityFingerprint)
	})

	t.Run("説明文を変えるとアイデンティティが更新される", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{Name: "Thorin", Description: "Red beard"})
		require.NoError(t, err)
		before := c.IdentityFingerprint

		desc := "Black beard, bronze helmet"
		c, err = e.mgr.UpdateCharacter(ctx, c.ID, workflow.CharacterPatch{Description: &desc})
		require.NoError(t, err)
		assert.NotEqual(t, before, c.IdentityFingerprint)
		assert.Contains(t, c.VisualIdentity, "bronze helmet")
	})

	t.Run("参照画像を差し替えると古いアセットが消える", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{
			Name: "Elora", Description: "Half-elf archer", ReferenceImage: writeImage(t, "a.png"),
		})
		require.NoError(t, err)
		old := c.ReferenceImage

		next := writeImage(t, "b.png")
		c, err = e.mgr.UpdateCharacter(ctx, c.ID, workflow.CharacterPatch{ReferenceImage: &next})
		require.NoError(t, err)

		assert.NotEqual(t, old, c.ReferenceImage)
		assert.FileExists(t, c.ReferenceImage)
		assert.NoFileExists(t, old)
	})

	t.Run("説明文の拡張は生成結果で説明文とアイデンティティを置き換える", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{Name: "Thorin", Role: "Fighter", Description: "dwarf"})
		require.NoError(t, err)

		e.text.reply = "A stout dwarf with a braided red beard and dented steel plate armor."
		e.text.errs = []error{domain.NewProviderError(domain.TransientProviderError, "test", errors.New("503"))}

		c, err = e.mgr.ExpandCharacterDescription(ctx, c.ID, "make him look battle-worn")
		require.NoError(t, err)
		assert.Equal(t, e.text.reply, c.Description)
		assert.Contains(t, c.VisualIdentity, "braided red beard")
		require.Len(t, e.text.prompts, 2)
		assert.Contains(t, e.text.prompts[0], "battle-worn")
	})

	t.Run("説明文の拡張の失敗は操作名付きの ProviderError", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{Name: "Thorin", Description: "dwarf"})
		require.NoError(t, err)

		e.text.errs = []error{domain.NewProviderError(domain.QuotaExceeded, "test", errors.New("quota"))}
		_, err = e.mgr.ExpandCharacterDescription(ctx, c.ID, "")

		var pe *domain.ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, domain.QuotaExceeded, pe.Kind)
		assert.Equal(t, workflow.OpExpandDescription, pe.Operation)

		stored, err := e.mgr.GetCharacter(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "dwarf", stored.Description)
	})
}

func TestManager_DeleteCharacter(t *testing.T) {
	ctx := context.Background()

	t.Run("シーンに登場するキャラクターは削除できない", func(t *testing.T) {
		e := newEnv(t)
		c, ch, thorin, _ := e.party(t)
		s := e.scene(t, c, ch, "Thorin charges the goblins", thorin.ID)

		err := e.mgr.DeleteCharacter(ctx, thorin.ID)
		var de *domain.DanglingReferenceError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, []string{s.ID}, de.ReferencedBy)

		_, err = e.mgr.GetCharacter(ctx, thorin.ID)
		assert.NoError(t, err)
	})

	t.Run("参照が無ければ全キャンペーンから外して削除する", func(t *testing.T) {
		e := newEnv(t)
		c, ch, thorin, elora := e.party(t)
		e.scene(t, c, ch, "Thorin stands guard", thorin.ID)

		other, err := e.mgr.CreateCampaign(ctx, workflow.CampaignInput{Name: "Curse of Strahd"})
		require.NoError(t, err)
		_, err = e.mgr.LinkCharacter(ctx, other.ID, elora.ID)
		require.NoError(t, err)

		require.NoError(t, e.mgr.DeleteCharacter(ctx, elora.ID))

		_, err = e.mgr.GetCharacter(ctx, elora.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		for _, id := range []string{c.ID, other.ID} {
			got, err := e.mgr.GetCampaign(ctx, id)
			require.NoError(t, err)
			assert.NotContains(t, got.CharacterIDs, elora.ID)
		}
		got, err := e.mgr.GetCampaign(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{thorin.ID}, got.CharacterIDs)
	})

	t.Run("削除すると参照画像も消える", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.mgr.CreateCharacter(ctx, workflow.CharacterInput{
			Name: "Elora", ReferenceImage: writeImage(t, "elora.png"),
		})
		require.NoError(t, err)
		require.NoError(t, e.mgr.DeleteCharacter(ctx, c.ID))
		assert.NoFileExists(t, c.ReferenceImage)
	})

	t.Run("存在しないキャラクターは NotFound", func(t *testing.T) {
		e := newEnv(t)
		assert.ErrorIs(t, e.mgr.DeleteCharacter(ctx, "ghost"), domain.ErrNotFound)
	})

	cases := []struct {
		name           string
		failCampaignAt int
		failCharDelete bool
	}{
		{name: "2件目のキャンペーン保存に失敗したら紐付けを元に戻す", failCampaignAt: 2},
		{name: "レコード削除に失敗したら紐付けを元に戻す", failCharDelete: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fb := &failingBackend{}
			e := newEnv(t, func(b store.Backend) store.Backend {
				fb.Backend = b
				return fb
			})
			c, _, thorin, _ := e.party(t)
			other, err := e.mgr.CreateCampaign(ctx, workflow.CampaignInput{Name: "Curse of Strahd"})
			require.NoError(t, err)
			_, err = e.mgr.LinkCharacter(ctx, other.ID, thorin.ID)
			require.NoError(t, err)

			fb.arm(tc.failCampaignAt, tc.failCharDelete)
			err = e.mgr.DeleteCharacter(ctx, thorin.ID)
			require.ErrorIs(t, err, errBackend)

			_, err = e.mgr.GetCharacter(ctx, thorin.ID)
			assert.NoError(t, err)
			for _, id := range []string{c.ID, other.ID} {
				got, err := e.mgr.GetCampaign(ctx, id)
				require.NoError(t, err)
				assert.Contains(t, got.CharacterIDs, thorin.ID)
			}
		})
	}
}

func TestManager_Campaigns(t *testing.T) {
	ctx := context.Background()

	t.Run("章の追加と名前の変更", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.mgr.CreateCampaign(ctx, workflow.CampaignInput{Name: "Lost Mines", Description: "A starter adventure"})
		require.NoError(t, err)

		ch1, err := e.mgr.AddChapter(ctx, c.ID, "Goblin Ambush")
		require.NoError(t, err)
		ch2, err := e.mgr.AddChapter(ctx, c.ID, "Cragmaw Hideout")
		require.NoError(t, err)
		assert.NotEqual(t, ch1.ID, ch2.ID)

		c, err = e.mgr.RenameChapter(ctx, c.ID, ch1.ID, "The Ambush")
		require.NoError(t, err)
		require.Len(t, c.Chapters, 2)
		assert.Equal(t, "The Ambush", c.Chapters[0].Name)
		assert.Equal(t, "Cragmaw Hideout", c.Chapters[1].Name)

		_, err = e.mgr.RenameChapter(ctx, c.ID, "missing", "x")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("名前が空のキャンペーンは作れない", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.mgr.CreateCampaign(ctx, workflow.CampaignInput{})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("更新は空でないフィールドだけを反映する", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.mgr.CreateCampaign(ctx, workflow.CampaignInput{Name: "Lost Mines", Style: "watercolor"})
		require.NoError(t, err)
		c, err = e.mgr.UpdateCampaign(ctx, c.ID, workflow.CampaignInput{Description: "Phandelver"})
		require.NoError(t, err)
		assert.Equal(t, "Lost Mines", c.Name)
		assert.Equal(t, "watercolor", c.Style)
		assert.Equal(t, "Phandelver", c.Description)
	})

	t.Run("存在しないキャラクターは紐付けられない", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.mgr.CreateCampaign(ctx, workflow.CampaignInput{Name: "Lost Mines"})
		require.NoError(t, err)
		_, err = e.mgr.LinkCharacter(ctx, c.ID, "ghost")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("二重の紐付けは一度だけ記録される", func(t *testing.T) {
		e := newEnv(t)
		c, _, thorin, _ := e.party(t)
		c, err := e.mgr.LinkCharacter(ctx, c.ID, thorin.ID)
		require.NoError(t, err)
		assert.Len(t, c.CharacterIDs, 2)
	})

	t.Run("シーンに登場するキャラクターは紐付けを外せない", func(t *testing.T) {
		e := newEnv(t)
		c, ch, thorin, elora := e.party(t)
		e.scene(t, c, ch, "Thorin charges", thorin.ID)

		_, err := e.mgr.UnlinkCharacter(ctx, c.ID, thorin.ID)
		assert.ErrorIs(t, err, domain.ErrDanglingReference)

		c, err = e.mgr.UnlinkCharacter(ctx, c.ID, elora.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{thorin.ID}, c.CharacterIDs)
	})

	t.Run("シーンの一覧は章順で返る", func(t *testing.T) {
		e := newEnv(t)
		c, ch1, thorin, elora := e.party(t)
		ch2, err := e.mgr.AddChapter(ctx, c.ID, "Cragmaw Hideout")
		require.NoError(t, err)

		late := e.scene(t, c, ch2, "Elora scouts the cave", elora.ID)
		early := e.scene(t, c, ch1, "Thorin charges", thorin.ID)

		scenes, err := e.mgr.ListScenes(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, scenes, 2)
		assert.Equal(t, early.ID, scenes[0].ID)
		assert.Equal(t, late.ID, scenes[1].ID)
	})
}

func TestManager_DeleteCampaign(t *testing.T) {
	ctx := context.Background()

	t.Run("シーンが残っていれば cascade 無しでは削除できない", func(t *testing.T) {
		e := newEnv(t)
		c, ch, thorin, _ := e.party(t)
		s := e.scene(t, c, ch, "Thorin charges", thorin.ID)

		err := e.mgr.DeleteCampaign(ctx, c.ID, false)
		var de *domain.DanglingReferenceError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, []string{s.ID}, de.ReferencedBy)

		_, err = e.mgr.GetCampaign(ctx, c.ID)
		assert.NoError(t, err)
	})

	t.Run("cascade ではシーンと画像も削除する", func(t *testing.T) {
		e := newEnv(t)
		c, ch, thorin, elora := e.party(t)
		s1 := e.scene(t, c, ch, "Thorin charges", thorin.ID)
		s2 := e.scene(t, c, ch, "Elora takes aim", elora.ID)

		require.NoError(t, e.mgr.DeleteCampaign(ctx, c.ID, true))

		_, err := e.mgr.GetCampaign(ctx, c.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		for _, s := range []domain.Scene{s1, s2} {
			_, err := e.mgr.GetScene(ctx, s.ID)
			assert.ErrorIs(t, err, domain.ErrNotFound)
			assert.NoFileExists(t, s.ImagePath)
		}

		// キャラクターは残り、参照されていないので削除できます
		require.NoError(t, e.mgr.DeleteCharacter(ctx, thorin.ID))
	})

	t.Run("シーンが無ければ cascade 無しで削除できる", func(t *testing.T) {
		e := newEnv(t)
		c, err := e.mgr.CreateCampaign(ctx, workflow.CampaignInput{Name: "Empty"})
		require.NoError(t, err)
		require.NoError(t, e.mgr.DeleteCampaign(ctx, c.ID, false))
	})
}

func TestManager_DeleteScene(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	c, ch, thorin, elora := e.party(t)
	s1 := e.scene(t, c, ch, "Thorin charges", thorin.ID)
	s2 := e.scene(t, c, ch, "Elora takes aim", elora.ID)

	require.NoError(t, e.mgr.DeleteScene(ctx, s1.ID))

	got, err := e.mgr.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{s2.ID}, got.SceneIDs())
	assert.NoFileExists(t, s1.ImagePath)
	assert.FileExists(t, s2.ImagePath)

	_, err = e.mgr.GetScene(ctx, s1.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// 参照が無くなったので紐付けを外せます
	_, err = e.mgr.UnlinkCharacter(ctx, c.ID, thorin.ID)
	assert.NoError(t, err)
}

func TestManager_Montage(t *testing.T) {
	ctx := context.Background()

	t.Run("Markdown で書き出すとファイルができる", func(t *testing.T) {
		e := newEnv(t)
		c, ch, thorin, elora := e.party(t)
		e.scene(t, c, ch, "Thorin charges", thorin.ID)
		e.scene(t, c, ch, "Elora takes aim", elora.ID)

		plan, err := e.mgr.CompileMontage(ctx, c.ID, false)
		require.NoError(t, err)
		assert.Len(t, plan.Pages, 4)

		res, err := e.mgr.ExportMontage(ctx, workflow.ExportRequest{CampaignID: c.ID, Format: "markdown"})
		require.NoError(t, err)
		assert.Equal(t, publisher.FormatMarkdown, res.Format)
		assert.Equal(t, 4, res.Pages)
		assert.True(t, strings.HasPrefix(res.Path, e.export))

		data, err := os.ReadFile(res.Path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "# Lost Mines")
	})

	t.Run("要約を含めると要約ページが付く", func(t *testing.T) {
		e := newEnv(t)
		c, ch, thorin, _ := e.party(t)
		e.scene(t, c, ch, "Thorin charges", thorin.ID)

		e.text.reply = "The heroes survived the ambush."
		recap, err := e.mgr.ComposeRecap(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, e.text.reply, recap)

		plan, err := e.mgr.CompileMontage(ctx, c.ID, true)
		require.NoError(t, err)
		kinds := plan.Kinds()
		assert.Equal(t, domain.PageRecap, kinds[len(kinds)-1])
	})

	t.Run("未対応の形式は InvalidArgument", func(t *testing.T) {
		e := newEnv(t)
		c, _, _, _ := e.party(t)
		_, err := e.mgr.ExportMontage(ctx, workflow.ExportRequest{CampaignID: c.ID, Format: "docx"})
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	})

	t.Run("存在しないキャンペーンは NotFound", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.mgr.CompileMontage(ctx, "ghost", false)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
