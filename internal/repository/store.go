package repository

import "gorm.io/gorm"

// NewGormStore wires every GORM repository onto one connection.
func NewGormStore(db *gorm.DB) *Store {
	return &Store{
		Users:       NewGormUserRepository(db),
		Rooms:       NewGormRoomRepository(db),
		Memberships: NewGormMembershipRepository(db),
		Messages:    NewGormMessageRepository(db),
	}
}

// NewMemoryStore exposes one MemoryRepository through every interface.
func NewMemoryStore(repo *MemoryRepository) *Store {
	return &Store{
		Users:       repo,
		Rooms:       repo.Rooms(),
		Memberships: repo,
		Messages:    repo,
	}
}
