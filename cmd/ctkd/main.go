// Command ctkd is the reference bootstrap for the ctk core: it loads
// configuration, opens the store, and exercises save/list/search/evaluate
// end-to-end, logging results the way dimajix-llm-monitor's cmd/main.go
// logs its proxy server's lifecycle.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/queelius/ctk/internal/ctkconfig"
	"github.com/queelius/ctk/internal/ctklog"
	"github.com/queelius/ctk/internal/model"
	"github.com/queelius/ctk/internal/store"
	"github.com/queelius/ctk/internal/tree"
	"github.com/queelius/ctk/internal/vfs"
	"github.com/queelius/ctk/internal/views"
)

func main() {
	configFile := flag.String("c", "ctk.yaml", "Path to the config file")
	flag.Parse()

	cfg, err := ctkconfig.LoadConfig(*configFile)
	if err != nil {
		logrus.WithError(err).Fatal("could not load config file, terminating")
		return
	}

	ctklog.Init(cfg.Logging)

	st, err := store.NewStorage(cfg.Store)
	if err != nil {
		logrus.WithError(err).Fatal("could not open store, terminating")
		return
	}
	defer st.Close()

	viewStore, err := views.NewStore(cfg.Views.Dir)
	if err != nil {
		logrus.WithError(err).Fatal("could not open view store, terminating")
		return
	}

	cacheBounds := vfs.CacheBounds{
		MinTTL:      time.Duration(cfg.VFS.MinTTLSeconds) * time.Second,
		MaxTTL:      time.Duration(cfg.VFS.MaxTTLSeconds) * time.Second,
		HitCountCap: cfg.VFS.HitCountCap,
	}
	nav := vfs.NewNavigatorWithCacheBounds(st, viewStore, cacheBounds)

	ctx := context.Background()
	runExercise(ctx, st, viewStore, nav)
}

// runExercise is a scripted walkthrough of the core surface: save two
// conversations, list and search them, evaluate a view over one, and
// browse the VFS. It exists to demonstrate the wiring end-to-end; it is
// not a REPL or a server.
func runExercise(ctx context.Context, st store.Storage, viewStore *views.Store, nav *vfs.Navigator) {
	id1, err := st.Save(ctx, sampleConversation("welcome", "Welcome", "How do I get started?", "Save a conversation, then browse it."))
	if err != nil {
		logrus.WithError(err).Error("save failed")
		return
	}
	logrus.WithField("id", id1).Info("saved conversation")

	if _, err := st.StarConversation(ctx, id1, true); err != nil {
		logrus.WithError(err).Error("star failed")
	}

	id2, err := st.Save(ctx, sampleConversation("followup", "Follow-up", "Can it branch?", "Yes, messages may share a parent."))
	if err != nil {
		logrus.WithError(err).Error("save failed")
		return
	}
	logrus.WithField("id", id2).Info("saved conversation")

	page, err := st.ListConversations(ctx, store.ListFilters{}, store.Pagination{PageSize: 10})
	if err != nil {
		logrus.WithError(err).Error("list failed")
	} else {
		logrus.WithField("count", len(page.Items)).Info("listed conversations")
	}

	result, err := st.SearchConversations(ctx, store.SearchFilters{ListFilters: store.ListFilters{Starred: store.True()}}, store.DefaultOrdering, store.Pagination{PageSize: 10})
	if err != nil {
		logrus.WithError(err).Error("search failed")
	} else {
		logrus.WithField("count", len(result.Items)).Info("searched starred conversations")
	}

	if _, err := viewStore.CreateView("starred", "conversations currently starred", "ctkd"); err != nil {
		logrus.WithError(err).Warn("view already exists")
	}
	if err := viewStore.Save(&views.View{
		Name:        "starred",
		Description: "conversations currently starred",
		Version:     1,
		SkipMissing: true,
		Query:       &views.ViewQuery{Starred: boolPtr(true)},
	}); err != nil {
		logrus.WithError(err).Error("save view failed")
	}

	evaluated, err := viewStore.Evaluate(ctx, "starred", st)
	if err != nil {
		logrus.WithError(err).Error("evaluate view failed")
	} else {
		logrus.WithField("resolved", len(evaluated.Items)).Info("evaluated starred view")
	}

	if err := viewStore.SetExportHints("starred", views.ExportHints{Format: "markdown", Draft: true}); err != nil {
		logrus.WithError(err).Warn("set export hints failed")
	}

	loaded, err := st.Load(ctx, id2)
	if err != nil {
		logrus.WithError(err).Error("load failed")
		return
	}
	navigator := tree.NewNavigator(loaded)
	longest, err := navigator.SelectPath("longest")
	if err != nil {
		logrus.WithError(err).Error("select path failed")
	} else {
		logrus.WithField("messages", len(longest)).Info("selected longest path")
	}
	logrus.Debug(navigator.FormatTree())

	chatsPath, err := nav.Parse("/chats")
	if err != nil {
		logrus.WithError(err).Error("parse failed")
		return
	}
	entries, err := nav.ListDirectory(ctx, chatsPath)
	if err != nil {
		logrus.WithError(err).Error("list_directory failed")
		return
	}
	logrus.WithField("entries", len(entries)).Info("listed /chats")
}

func sampleConversation(id, title, question, answer string) *model.ConversationTree {
	conv := model.NewConversationTree(id)
	conv.Title = title
	conv.Metadata.Source = "ctkd-demo"
	conv.AddMessage(model.Message{ID: "m1", Role: model.RoleUser, Content: model.MessageContent{Text: question}})
	parent := "m1"
	conv.AddMessage(model.Message{ID: "m2", Role: model.RoleAssistant, Content: model.MessageContent{Text: answer}, ParentID: &parent})
	return conv
}

func boolPtr(b bool) *bool { return &b }
