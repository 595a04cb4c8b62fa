// Package pinyin romanizes Chinese display text for glasses whose target is
// the Pinyin rendition rather than Han script.
//
// Convert is a pure function over a built-in syllable table covering the
// high-frequency characters seen in conversational captions. Characters
// outside the table, and all non-Han runes, pass through unchanged, so
// mixed-script text degrades gracefully instead of dropping content.
// Tone marks are omitted: the display renders plain ASCII.
package pinyin

import (
	"strings"
	"unicode"
)

// Convert returns the Pinyin rendition of text. Consecutive romanized
// syllables are separated by single spaces; existing whitespace and
// punctuation are preserved.
func Convert(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text) * 2)

	var last rune
	prevSyllable := false
	for _, r := range text {
		syllable, ok := syllables[r]
		if !ok {
			if prevSyllable && isWordRune(r) {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			last = r
			prevSyllable = false
			continue
		}
		if prevSyllable || isWordRune(last) {
			b.WriteByte(' ')
		}
		b.WriteString(syllable)
		last = r
		prevSyllable = true
	}
	return b.String()
}

// isWordRune reports whether r would visually collide with an adjacent
// syllable without a separating space.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// syllables maps high-frequency Han characters to their toneless Pinyin.
// Unlisted characters pass through Convert unchanged.
var syllables = map[rune]string{
	'一': "yi", '二': "er", '三': "san", '四': "si", '五': "wu",
	'六': "liu", '七': "qi", '八': "ba", '九': "jiu", '十': "shi",
	'百': "bai", '千': "qian", '万': "wan", '零': "ling",
	'人': "ren", '我': "wo", '你': "ni", '他': "ta", '她': "ta",
	'们': "men", '的': "de", '了': "le", '是': "shi", '不': "bu",
	'在': "zai", '有': "you", '这': "zhe", '那': "na", '个': "ge",
	'上': "shang", '下': "xia", '来': "lai", '去': "qu", '到': "dao",
	'说': "shuo", '话': "hua", '想': "xiang", '看': "kan", '听': "ting",
	'见': "jian", '做': "zuo", '吃': "chi", '喝': "he", '走': "zou",
	'买': "mai", '卖': "mai", '会': "hui", '能': "neng", '可': "ke",
	'以': "yi", '要': "yao", '和': "he", '跟': "gen", '给': "gei",
	'很': "hen", '太': "tai", '都': "dou", '也': "ye", '还': "hai",
	'就': "jiu", '又': "you", '再': "zai", '最': "zui", '多': "duo",
	'少': "shao", '大': "da", '小': "xiao", '长': "chang", '短': "duan",
	'高': "gao", '低': "di", '新': "xin", '旧': "jiu", '老': "lao",
	'年': "nian", '月': "yue", '日': "ri", '天': "tian", '时': "shi",
	'候': "hou", '分': "fen", '钟': "zhong", '今': "jin", '明': "ming",
	'昨': "zuo", '早': "zao", '晚': "wan", '午': "wu", '现': "xian",
	'好': "hao", '坏': "huai", '对': "dui", '错': "cuo", '真': "zhen",
	'假': "jia", '快': "kuai", '慢': "man", '远': "yuan", '近': "jin",
	'东': "dong", '西': "xi", '南': "nan", '北': "bei", '中': "zhong",
	'国': "guo", '家': "jia", '学': "xue", '校': "xiao", '生': "sheng",
	'工': "gong", '作': "zuo", '开': "kai", '关': "guan", '门': "men",
	'车': "che", '路': "lu", '火': "huo", '水': "shui", '山': "shan",
	'电': "dian", '脑': "nao", '手': "shou", '机': "ji",
	'名': "ming", '字': "zi", '写': "xie", '读': "du", '书': "shu",
	'文': "wen", '语': "yu", '言': "yan", '英': "ying", '汉': "han",
	'什': "shen", '么': "me", '谁': "shui", '哪': "na", '里': "li",
	'怎': "zen", '样': "yang", '为': "wei", '因': "yin", '所': "suo",
	'谢': "xie", '请': "qing", '问': "wen", '客': "ke", '气': "qi",
	'没': "mei", '行': "xing", '知': "zhi", '道': "dao", '得': "de",
	'起': "qi", '住': "zhu", '站': "zhan", '坐': "zuo", '飞': "fei",
	'出': "chu", '进': "jin", '回': "hui", '过': "guo", '从': "cong",
	'朋': "peng", '友': "you", '先': "xian", '后': "hou", '面': "mian",
	'前': "qian", '边': "bian", '左': "zuo", '右': "you", '旁': "pang",
	'吗': "ma", '呢': "ne", '吧': "ba", '啊': "a", '哦': "o",
	'爱': "ai", '喜': "xi", '欢': "huan", '希': "xi", '望': "wang",
	'点': "dian", '些': "xie", '每': "mei", '位': "wei", '只': "zhi",
	'两': "liang", '半': "ban", '几': "ji", '次': "ci", '第': "di",
	'世': "shi", '界': "jie", '安': "an", '平': "ping", '信': "xin",
	'息': "xi", '事': "shi", '情': "qing", '意': "yi", '思': "si",
	'无': "wu", '法': "fa", '别': "bie", '让': "rang", '把': "ba",
	'用': "yong", '已': "yi", '经': "jing", '正': "zheng", '当': "dang",
	'夜': "ye", '白': "bai", '黑': "hei", '红': "hong",
	'黄': "huang", '蓝': "lan", '绿': "lv", '色': "se",
}
