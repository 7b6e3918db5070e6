// Package present renders active reminders. The engine owns what is shown
// and when; presenters only draw and clear. Two implementations exist: a
// structured-log presenter (always safe) and a Telegram presenter that
// posts dismissible messages to a chat.
package present
