// Package logx is remindbot's logging layer: a zerolog-backed Logger whose
// sinks (console, JSON file, Telegram operator alerts) can be swapped while
// the bot runs.
//
// Reminder code tags records with Owner, Job and FireAt so one grep follows a
// reminder from /set to delivery.
package logx
