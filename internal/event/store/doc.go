// Package store groups the persistent event.Store backends: redisstore,
// sqlitestore and mongostore. storetest holds the behavior suite every
// backend runs.
package store
