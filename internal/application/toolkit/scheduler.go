package toolkit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	dateLayout = "2006-01-02"

	defaultPostsPerWeek = 5
	maxPostsPerWeek     = 21
	defaultWeeks        = 1
	maxWeeks            = 4
)

var defaultPlatforms = []string{"twitter", "linkedin", "instagram"}

// platformBestHours 各平台的推荐发布时段（UTC 小时）
var platformBestHours = map[string][]int{
	"twitter":   {8, 12, 17},
	"linkedin":  {8, 10, 12},
	"instagram": {11, 13, 19},
	"facebook":  {9, 13, 15},
	"tiktok":    {12, 19, 21},
}

var platformHashtags = map[string][]string{
	"twitter":   {"#TechTwitter", "#Growth"},
	"linkedin":  {"#B2B", "#Leadership"},
	"instagram": {"#InstaDaily", "#BehindTheScenes"},
	"facebook":  {"#Community", "#SmallBusiness"},
	"tiktok":    {"#LearnOnTikTok", "#FYP"},
}

type contentIdea struct {
	kind string
	// idea 中的 %s 替换为主题
	idea string
}

type schedulerPhrases struct {
	ideas    []contentIdea
	weekdays [7]string
}

var schedulerTables = map[string]*schedulerPhrases{
	LanguageEnglish: {
		ideas: []contentIdea{
			{"Tip", "Share a quick, actionable tip about %s"},
			{"Question", "Ask your audience what challenges them most about %s"},
			{"Behind the scenes", "Show how your team works on %s day to day"},
			{"Case study", "Tell a short customer story involving %s"},
			{"Myth busting", "Debunk a common misconception about %s"},
			{"How-to", "Walk through a step-by-step guide on %s"},
			{"Poll", "Run a poll asking which %s approach people prefer"},
			{"Statistic", "Highlight a surprising number related to %s"},
			{"Checklist", "Post a five-point checklist for getting started with %s"},
			{"Announcement", "Tease an upcoming update related to %s"},
		},
		weekdays: [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
	},
	LanguageTurkish: {
		ideas: []contentIdea{
			{"İpucu", "%s hakkında hızlı ve uygulanabilir bir ipucu paylaşın"},
			{"Soru", "Takipçilerinize %s konusunda en çok neyin zorladığını sorun"},
			{"Kamera arkası", "Ekibinizin %s üzerinde günlük olarak nasıl çalıştığını gösterin"},
			{"Başarı hikayesi", "%s ile ilgili kısa bir müşteri hikayesi anlatın"},
			{"Efsane yıkma", "%s hakkında yaygın bir yanlış inancı çürütün"},
			{"Nasıl yapılır", "%s için adım adım bir rehber paylaşın"},
			{"Anket", "Hangi %s yaklaşımının tercih edildiğini soran bir anket yapın"},
			{"İstatistik", "%s ile ilgili şaşırtıcı bir rakamı öne çıkarın"},
			{"Kontrol listesi", "%s ile başlamak için beş maddelik bir kontrol listesi paylaşın"},
			{"Duyuru", "%s ile ilgili yaklaşan bir güncellemenin ipucunu verin"},
		},
		weekdays: [7]string{"Pazar", "Pazartesi", "Salı", "Çarşamba", "Perşembe", "Cuma", "Cumartesi"},
	},
}

// PostSchedule 发布计划
type PostSchedule struct {
	Topic        string          `json:"topic"`
	StartDate    string          `json:"startDate"`
	EndDate      string          `json:"endDate"`
	Platforms    []string        `json:"platforms"`
	PostsPerWeek int             `json:"postsPerWeek"`
	Weeks        int             `json:"weeks"`
	TotalPosts   int             `json:"totalPosts"`
	Posts        []ScheduledPost `json:"posts"`
}

type ScheduledPost struct {
	Date        string   `json:"date"`
	Weekday     string   `json:"weekday"`
	Time        string   `json:"time"`
	Platform    string   `json:"platform"`
	ContentType string   `json:"contentType"`
	Idea        string   `json:"idea"`
	Hashtags    []string `json:"hashtags"`
}

// ScheduleOptions 发布计划参数
type ScheduleOptions struct {
	Topic        string
	Platforms    []string
	PostsPerWeek int
	Weeks        int
	StartDate    time.Time
	Language     string
}

func newSchedulerTool(now func() time.Time) *Tool {
	return &Tool{
		ID:          ToolPostScheduler,
		DisplayName: "Post Scheduler",
		Cost:        0,
		ResultField: "schedule",
		Required:    []string{"topic"},
		Compute: func(_ context.Context, req *Request) (any, error) {
			opts, err := parseScheduleOptions(req, now)
			if err != nil {
				return nil, err
			}
			return BuildSchedule(opts), nil
		},
	}
}

func parseScheduleOptions(req *Request, now func() time.Time) (ScheduleOptions, error) {
	opts := ScheduleOptions{
		Topic:        req.Field("topic"),
		Platforms:    defaultPlatforms,
		PostsPerWeek: defaultPostsPerWeek,
		Weeks:        defaultWeeks,
		Language:     req.Language,
	}

	if raw := req.Field("platforms"); raw != "" {
		platforms, err := parsePlatforms(raw)
		if err != nil {
			return opts, err
		}
		opts.Platforms = platforms
	}

	var err error
	if opts.PostsPerWeek, err = intField(req, "postsPerWeek", defaultPostsPerWeek, 1, maxPostsPerWeek); err != nil {
		return opts, err
	}
	if opts.Weeks, err = intField(req, "weeks", defaultWeeks, 1, maxWeeks); err != nil {
		return opts, err
	}

	if raw := req.Field("startDate"); raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			return opts, invalidField("startDate", "expected YYYY-MM-DD")
		}
		opts.StartDate = d
	} else {
		y, m, d := now().UTC().Date()
		opts.StartDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return opts, nil
}

func parsePlatforms(raw string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if p == "x" {
			p = "twitter"
		}
		if _, ok := platformBestHours[p]; !ok {
			return nil, invalidField("platforms", fmt.Sprintf("unsupported platform %q", p))
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return defaultPlatforms, nil
	}
	return out, nil
}

func intField(req *Request, name string, def, lo, hi int) (int, error) {
	raw := req.Field(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, invalidField(name, fmt.Sprintf("must be an integer between %d and %d", lo, hi))
	}
	return v, nil
}

// BuildSchedule 生成发布计划，主题与开始日期相同时结果相同
func BuildSchedule(opts ScheduleOptions) *PostSchedule {
	phrases := schedulerTables[NormalizeLanguage(opts.Language)]
	start := opts.StartDate.UTC()
	rng := seededRand(strings.ToLower(opts.Topic) + "|" + start.Format(dateLayout))
	topicTag := hashtagFor(opts.Topic)

	s := &PostSchedule{
		Topic:        opts.Topic,
		StartDate:    start.Format(dateLayout),
		EndDate:      start.AddDate(0, 0, 7*opts.Weeks-1).Format(dateLayout),
		Platforms:    opts.Platforms,
		PostsPerWeek: opts.PostsPerWeek,
		Weeks:        opts.Weeks,
		TotalPosts:   opts.PostsPerWeek * opts.Weeks,
		Posts:        make([]ScheduledPost, 0, opts.PostsPerWeek*opts.Weeks),
	}

	platformOffset := rng.IntN(len(opts.Platforms))
	ideaOrder := rng.Perm(len(phrases.ideas))
	n := 0
	for w := 0; w < opts.Weeks; w++ {
		for i := 0; i < opts.PostsPerWeek; i++ {
			// 均匀铺开到一周七天，超过七篇时同一天多篇
			day := start.AddDate(0, 0, w*7+i*7/opts.PostsPerWeek)
			platform := opts.Platforms[(platformOffset+n)%len(opts.Platforms)]
			hours := platformBestHours[platform]
			hour := hours[(n/len(opts.Platforms)+i)%len(hours)]
			minute := []int{0, 15, 30, 45}[rng.IntN(4)]
			idea := phrases.ideas[ideaOrder[n%len(ideaOrder)]]

			tags := []string{}
			if topicTag != "" {
				tags = append(tags, topicTag)
			}
			tags = append(tags, platformHashtags[platform][rng.IntN(len(platformHashtags[platform]))])

			s.Posts = append(s.Posts, ScheduledPost{
				Date:        day.Format(dateLayout),
				Weekday:     phrases.weekdays[day.Weekday()],
				Time:        fmt.Sprintf("%02d:%02d", hour, minute),
				Platform:    platform,
				ContentType: idea.kind,
				Idea:        fmt.Sprintf(idea.idea, opts.Topic),
				Hashtags:    tags,
			})
			n++
		}
	}
	return s
}

// hashtagFor 主题转驼峰标签，如 "remote work" → "#RemoteWork"
func hashtagFor(topic string) string {
	var b strings.Builder
	for _, w := range strings.FieldsFunc(topic, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		rs := []rune(strings.ToLower(w))
		rs[0] = unicode.ToUpper(rs[0])
		b.WriteString(string(rs))
	}
	if b.Len() == 0 {
		return ""
	}
	return "#" + b.String()
}
