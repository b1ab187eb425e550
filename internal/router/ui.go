package router

import (
	"strconv"

	tele "gopkg.in/telebot.v4"

	"herald/internal/config"
	"herald/pkg/tgui"
)

// KeyboardLabel is the single persistent reply-keyboard button that opens
// the menu.
const KeyboardLabel = "📅 Расписание стримов и прочее"

const (
	menuText    = "Меню бота:"
	socialsText = "Соцсети стримера:"
	bookingText = "Бронь стрима:"

	bookingRulesText = "<b>Условия брони:</b>\n" +
		"• Призовые кастомки — бесплатно при условии от 3 игр, приз 480 UC за карту, свободный вход.\n" +
		"• Турниры / лиги / праки — от 250₽ / 125₴ за 1 катку (по договоренности).\n" +
		"• TDM-турниры — от 100₽ / 50₴ за катку.\n"
)

// ReplyKeyboard is the persistent keyboard attached to the bot's startup
// message.
func ReplyKeyboard() *tele.ReplyMarkup {
	return tgui.ReplyKB(KeyboardLabel)
}

func mainMenuKB(soc config.SocialConfig) *tele.ReplyMarkup {
	b := tgui.NewInline().
		Row(tgui.Btn("📅 Сегодня", tgui.Data("t", "today")),
			tgui.Btn("📅 Неделя", tgui.Data("t", "week"))).
		Row(tgui.Btn("📅 Месяц", tgui.Data("t", "month")),
			tgui.Btn("Бронь стрима", tgui.Data("menu", "booking")))

	var extras []tele.Btn
	if soc.BuyUC != "" {
		extras = append(extras, tgui.URLBtn("Купить юси", soc.BuyUC))
	}
	if soc.JoinClan != "" {
		extras = append(extras, tgui.URLBtn("Вступить в клан", soc.JoinClan))
	}
	if len(extras) > 0 {
		b.Row(extras...)
	}
	b.Row(tgui.Btn("Соцсети стримера", tgui.Data("menu", "socials")),
		tgui.Btn("← Закрыть", tgui.Data("menu", "close")))
	return b.Markup()
}

func socialsKB(soc config.SocialConfig) *tele.ReplyMarkup {
	b := tgui.NewInline()
	var row []tele.Btn
	add := func(text, url string) {
		if url == "" {
			return
		}
		row = append(row, tgui.URLBtn(text, url))
		if len(row) == 2 {
			b.Row(row...)
			row = nil
		}
	}
	add("YouTube", soc.YouTube)
	add("Twitch", soc.Twitch)
	add("Группа Telegram", soc.TGGroup)
	add("Канал Telegram", soc.TGChannel)
	add("TikTok", soc.TikTok)
	if len(row) > 0 {
		b.Row(row...)
	}
	b.Row(tgui.Btn("← Назад", tgui.Data("menu", "main")))
	return b.Markup()
}

func bookingKB(soc config.SocialConfig) *tele.ReplyMarkup {
	b := tgui.NewInline()
	row := []tele.Btn{tgui.Btn("Условия брони", tgui.Data("booking", "rules"))}
	if soc.BookingDM != "" {
		row = append(row, tgui.URLBtn("Сделать бронь", soc.BookingDM))
	}
	b.Row(row...)
	b.Row(tgui.Btn("← Назад", tgui.Data("menu", "main")))
	return b.Markup()
}

func backToMenuKB() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("← Назад в меню", tgui.Data("menu", "main"))).
		Markup()
}

// monthNavKB pages through the weeks of one month. Prev/next wrap around.
func monthNavKB(ym string, idx, total int) *tele.ReplyMarkup {
	prev := (idx - 1 + total) % total
	next := (idx + 1) % total
	label := "Неделя " + strconv.Itoa(idx+1) + "/" + strconv.Itoa(total)
	return tgui.NewInline().
		Row(tgui.Btn("◀️", tgui.Data("m", ym, strconv.Itoa(prev))),
			tgui.Btn(label, tgui.Data("m", ym, strconv.Itoa(idx))),
			tgui.Btn("▶️", tgui.Data("m", ym, strconv.Itoa(next)))).
		Row(tgui.Btn("← Назад в меню", tgui.Data("menu", "main"))).
		Markup()
}

// StreamButtons links an announcement or nudge to the live platforms. With
// no live video id the YouTube button points at the channel page.
func StreamButtons(soc config.SocialConfig, ytChannelID, twitchUser, videoID string) *tele.ReplyMarkup {
	ytURL := soc.YouTube
	if videoID != "" {
		ytURL = "https://www.youtube.com/watch?v=" + videoID
	} else if ytURL == "" && ytChannelID != "" {
		ytURL = "https://www.youtube.com/channel/" + ytChannelID
	}

	var row []tele.Btn
	if ytURL != "" {
		row = append(row, tgui.URLBtn("❤️ Гоу на YouTube", ytURL))
	}
	if twitchUser != "" {
		row = append(row, tgui.URLBtn("💜 Гоу на Twitch", "https://www.twitch.tv/"+twitchUser))
	}
	b := tgui.NewInline()
	if len(row) > 0 {
		b.Row(row...)
	}
	return b.Markup()
}

// ClanButton is the single call-to-action under the daily digest.
func ClanButton(soc config.SocialConfig) *tele.ReplyMarkup {
	b := tgui.NewInline()
	if soc.JoinClan != "" {
		b.Row(tgui.URLBtn("Вступить в клан", soc.JoinClan))
	}
	return b.Markup()
}
