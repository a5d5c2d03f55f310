// Package scheduler turns a reminder's "H:MM AM/PM" frequency and date window
// into a daily cron trigger and keeps at most one live trigger per reminder.
//
// The scheduler only decides when a reminder fires. Each firing is handed to
// the task engine, which runs the dispatcher off the cron goroutine.
package scheduler
