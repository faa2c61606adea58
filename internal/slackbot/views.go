package slackbot

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Rrens/slack-gpt/internal/domain"
	"github.com/Rrens/slack-gpt/internal/usage"
	"github.com/slack-go/slack"
)

// Interaction identifiers
const (
	ActionTotalUsage     = "total_usage"
	ActionRankUsage      = "rank_usage"
	CallbackDrawImage    = "draw_image"
	BlockTranslate       = "input_check"
	ActionTranslate      = "is_translate"
	BlockDescription     = "input_text"
	ActionDescription    = "image_description"
	homeAvatarURL        = "https://pbs.twimg.com/profile_images/625633822235693056/lNGUneLX_400x400.jpg"
	maxDescriptionLength = 1000
)

var rankEmoji = []string{"one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

// rankWord returns the emoji name for a 0-based rank
func rankWord(i int) string {
	if i >= 0 && i < len(rankEmoji) {
		return rankEmoji[i]
	}
	return "keycap_star"
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, true, false)
}

func markdown(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.MarkdownType, text, false, false)
}

func section(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(markdown(text), nil, nil)
}

func formatUSD(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func imageBlocks(caption, imageURL string) []slack.Block {
	return []slack.Block{
		section("*" + caption + "*"),
		slack.NewImageBlock(imageURL, "marg", "", plain("그림")),
	}
}

func usageMenuModal(userID string) slack.ModalViewRequest {
	button := func(actionID string) *slack.Accessory {
		btn := slack.NewButtonBlockElement(actionID, "", plain("선택"))
		btn.Style = slack.StylePrimary
		return slack.NewAccessory(btn)
	}

	return slack.ModalViewRequest{
		Type:  slack.VTModal,
		Title: plain("사용량 확인"),
		Close: plain("닫기"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			section(fmt.Sprintf("*안녕하세요 <@%s>님!* 원하시는 메뉴를 골라주세요", userID)),
			slack.NewDividerBlock(),
			slack.NewSectionBlock(markdown(":dollar: *전체 사용량*\n이번 달 총 사용량을 확인합니다"), nil, button(ActionTotalUsage)),
			slack.NewSectionBlock(markdown(":bar_chart: *사용량 순위*\n전체 유저의 사용량 순위를 확인합니다"), nil, button(ActionRankUsage)),
		}},
	}
}

func waitingModal(text string) slack.ModalViewRequest {
	return slack.ModalViewRequest{
		Type:   slack.VTModal,
		Title:  plain("잠시만 기다려주세요"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{section(text)}},
	}
}

func totalUsageModal(summary domain.BillingSummary) slack.ModalViewRequest {
	return slack.ModalViewRequest{
		Type:  slack.VTModal,
		Title: plain("전체 사용량 확인"),
		Close: plain("닫기"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			section("*이번달 총 사용량입니다.*"),
			slack.NewContextBlock("", plain(fmt.Sprintf("요금 - %s$ (토큰 :%d개)", formatUSD(summary.Cost), summary.Tokens))),
		}},
	}
}

func rankingModal(ranking []domain.UserUsage) slack.ModalViewRequest {
	blocks := []slack.Block{section("*이번달 사용량 순위입니다.*")}
	for i, u := range ranking {
		cost := math.Round(u.Cost*1e4) / 1e4
		blocks = append(blocks,
			slack.NewDividerBlock(),
			section(fmt.Sprintf(":%s: *<@%s>님 사용량*\n", rankWord(i), u.ActorID)),
			slack.NewContextBlock("", plain(fmt.Sprintf("요금 - %s$ (토큰 : %d개), 사용 시간 - %s초",
				formatUSD(cost), u.TotalTokens, formatUSD(u.TotalElapsedSeconds)))),
		)
	}

	return slack.ModalViewRequest{
		Type:   slack.VTModal,
		Title:  plain("사용량 순위 확인"),
		Close:  plain("닫기"),
		Blocks: slack.Blocks{BlockSet: blocks},
	}
}

func drawModal(userID string) slack.ModalViewRequest {
	translate := slack.NewCheckboxGroupsBlockElement(ActionTranslate,
		slack.NewOptionBlockObject("translate", markdown("*번역 기능*"),
			markdown("한글로 작성하신 경우 체크해주세요\n(체크 시 토큰이 추가적으로 사용됩니다.)")),
	)
	translateInput := slack.NewInputBlock(BlockTranslate, plain("원하시는 기능을 선택해주세요:sparkles:"), nil, translate)
	translateInput.Optional = true

	description := slack.NewPlainTextInputBlockElement(nil, ActionDescription)
	description.Multiline = true
	description.MaxLength = maxDescriptionLength

	return slack.ModalViewRequest{
		Type:       slack.VTModal,
		CallbackID: CallbackDrawImage,
		Title:      plain("달리 선생님의 미술 교실"),
		Submit:     plain("그리기"),
		Close:      plain("닫기"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			section(fmt.Sprintf("*안녕하세요 <@%s>님!* 원하시는 그림이 있으신가요?", userID)),
			slack.NewDividerBlock(),
			translateInput,
			slack.NewDividerBlock(),
			slack.NewInputBlock(BlockDescription, plain("원하시는 그림에 대해서 설명해주세요:pray:"), nil, description),
		}},
	}
}

// parseDrawSubmission reads the draw modal's state
func parseDrawSubmission(userID string, state *slack.ViewState) domain.ImageRequest {
	req := domain.ImageRequest{ActorID: userID}
	if state == nil {
		return req
	}
	if block, ok := state.Values[BlockTranslate]; ok {
		req.Translate = len(block[ActionTranslate].SelectedOptions) > 0
	}
	if block, ok := state.Values[BlockDescription]; ok {
		req.Description = strings.TrimSpace(block[ActionDescription].Value)
	}
	return req
}

func homeView(userID string, commands []string, stats domain.UserUsage) slack.HomeTabViewRequest {
	var list strings.Builder
	for i, cmd := range commands {
		if i > 0 {
			list.WriteString("\n\n")
		}
		list.WriteString(cmd)
	}

	return slack.HomeTabViewRequest{
		Type: slack.VTHomeTab,
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(
				markdown(fmt.Sprintf("안녕하세요 <@%s>님! 사용 가능한 명령어 목록입니다 :smile:", userID)),
				nil,
				slack.NewAccessory(slack.NewImageBlockElement(homeAvatarURL, "cute cat")),
			),
			slack.NewDividerBlock(),
			section(list.String()),
			slack.NewDividerBlock(),
			section(fmt.Sprintf("• 이번 달 : 예상 `%s$` (`%d토큰`), `%s초`",
				formatUSD(stats.Cost), stats.TotalTokens, formatUSD(stats.TotalElapsedSeconds))),
			section("```" + usage.FormatDayTable(stats.Days) + "```"),
		}},
	}
}
