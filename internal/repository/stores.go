package repository

import (
	"gorm.io/gorm"
)

// Stores bundles every storage port behind one handle. The backend is picked
// once at startup: a nil db selects the flat-file backend for everything.
type Stores struct {
	Tasks  TaskStore
	Users  UserStore
	Badges BadgeStore
	Prefs  PrefsStore
}

func NewStores(dataDir string, db *gorm.DB) *Stores {
	fileTasks := NewFileTaskStore(dataDir)
	fileUsers := NewFileUserStore(dataDir)
	stores := &Stores{
		Tasks:  fileTasks,
		Users:  fileUsers,
		Badges: NewFileBadgeStore(dataDir),
		Prefs:  NewFilePrefsStore(dataDir),
	}
	if db != nil {
		stores.Tasks = NewDBTaskStore(db, fileTasks)
		stores.Users = NewDBUserStore(db, fileUsers)
		stores.Badges = NewDBBadgeStore(db)
	}
	return stores
}
