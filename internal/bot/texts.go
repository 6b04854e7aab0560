package bot

import (
	"fmt"

	"nightbot/pkg/tgui"
)

const (
	helpFooter = "<b>Notes</b>\n" +
		"• All times are UTC.\n" +
		"• The delete timer applies to the chat where you set it. Run /set_delete_timer again to move it.\n" +
		"• Scheduled media is sent back to the chat it came from, every day."

	textUsageDeleteTimer = "Usage: <code>/set_delete_timer &lt;minutes&gt;</code>\nExample: <code>/set_delete_timer 10</code>"
	textUsageSchedule    = "Usage: <code>/schedule_media &lt;HH:MM&gt;</code> (24-hour UTC)\nExample: <code>/schedule_media 08:30</code>"
	textBadMinutes       = "Invalid number. Please provide a positive whole number of minutes, e.g. <code>/set_delete_timer 10</code>."
	textBadTime          = "Invalid time format. Please use HH:MM (e.g. 09:30)."
	textTimerCancelled   = "Automatic media deletion has been cancelled."
	textNoTimer          = "No active automatic media deletion timer set."
	textStaleTimer       = "No active auto-deletion timer for this chat. Use /set_delete_timer first."
	textUnsupported      = "I can only schedule stickers, GIFs, photos, or videos. Please send one of these."
	textScheduleDBError  = "Failed to schedule media due to a database error. Please try again later."
	textDeleteDBError    = "Could not arm the deletion right now. Please try again later."
	textGenericDBError   = "Something went wrong while talking to the database. Please try again later."
	textNoSchedules      = "You have no scheduled media."
)

func pluralMinutes(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}

func textStart(name string, uid int64) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s! I can delete media automatically after a delay and send stored media back every day.\n\n"+
		"Your user ID: %s\n\nUse /help to see what I can do.", tgui.Esc(name), tgui.Code(fmt.Sprint(uid)))
}

func textTimerArmed(minutes int) string {
	return fmt.Sprintf("Okay! I will delete stickers, GIFs, photos, and videos sent in this chat automatically after %s.\n"+
		"Send /cancel_delete_timer to stop.", pluralMinutes(minutes))
}

func textWillDelete(minutes int) string {
	return fmt.Sprintf("This media will be deleted automatically in %s.", pluralMinutes(minutes))
}

func textAwaitMedia(at string) string {
	return fmt.Sprintf("Okay! I will schedule media to be sent daily at <b>%s UTC</b>.\n"+
		"Now, send me the sticker, GIF, photo, or video you want to schedule.", at)
}

func textScheduled(id, at string) string {
	return fmt.Sprintf("Media scheduled successfully! It will be sent daily at <b>%s UTC</b>.\n"+
		"Scheduled ID: %s\nUse /cancel_schedule to manage it.", at, tgui.Code(id))
}

func textNotFound(id string) string {
	return fmt.Sprintf("No scheduled media found with ID: %s for your user.", tgui.Code(id))
}

func textCancelled(id string) string {
	return fmt.Sprintf("Scheduled media with ID %s has been cancelled and removed.", tgui.Code(id))
}
