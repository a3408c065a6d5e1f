package prompts

import (
	"strings"

	"github.com/BTreeMap/LeadPipe/internal/lang"
	"github.com/BTreeMap/LeadPipe/internal/models"
)

// MessageKey names an entry in the fixed message catalogue.
type MessageKey string

const (
	MsgGreeting        MessageKey = "greeting"
	MsgAskName         MessageKey = "get_name"
	MsgAskAmount       MessageKey = "qualification_amount"
	MsgAskCity         MessageKey = "city"
	MsgAskPurpose      MessageKey = "purpose"
	MsgAskProperty     MessageKey = "property_ownership"
	MsgAskDetails      MessageKey = "property_details"
	MsgAskRisk         MessageKey = "risk_check"
	MsgAskAnythingElse MessageKey = "anything_else"
	MsgAskCallTime     MessageKey = "closing"
	MsgClosingAck      MessageKey = "closing_ack"
	MsgRejectAmount    MessageKey = "rejection_amount"
	MsgClarify         MessageKey = "unknown"
	MsgSystemError     MessageKey = "system_error"
	MsgAIUnavailable   MessageKey = "ai_unavailable"
)

// Placeholders filled in when rendering catalogue entries.
const (
	namePlaceholder   = "[Name]"
	amountPlaceholder = "[Min]"
)

var catalogue = map[lang.Code]map[MessageKey]string{
	lang.Hebrew: {
		MsgGreeting:        "שלום, תודה שפנית ל'אדמתנו ביתנו'. אנחנו כאן כדי לספק את הפתרונות הטובים ביותר עבורך. לפני שנתקדם – מה שלומך היום?",
		MsgAskName:         "שמח לשמוע. כדי שנוכל לדבר בצורה אישית, איך קוראים לך?",
		MsgAskAmount:       "נעים להכיר [Name]. איזה סכום אתה מעוניין לקבל?",
		MsgAskCity:         "באיזה יישוב אתה גר?",
		MsgAskPurpose:      "לאיזו מטרה מיועדת ההלוואה? (לדוגמה: שיפוץ, סגירת חובות, רכב חדש וכו')",
		MsgAskProperty:     "האם בבעלותך או בבעלות משפחה מדרגה ראשונה נכס כלשהו? (כן / לא)",
		MsgAskDetails:      "על שם מי רשום הנכס, היכן הוא רשום (טאבו / מינהל / לא רשום) והאם קיים היתר בנייה?",
		MsgAskRisk:         "האם היו לך בעיות מול הבנקים ב-3 השנים האחרונות? (כגון חזרות צ'קים, הגבלות חשבון או עיקולים?)",
		MsgAskAnythingElse: "יש עוד משהו שתרצה להוסיף לפני שנסיים?",
		MsgAskCallTime:     "הפרטים שלך הועברו לנציג מטעמנו. מתי נוח לך שהוא יחזור אליך?",
		MsgClosingAck:      "תודה רבה! נציג מטעמנו יחזור אליך בזמן שציינת.",
		MsgRejectAmount:    "לצערנו אנו מטפלים בבקשות החל מ-[Min] ש\"ח. סליחה על אי הנוחות, ונשמח לעמוד לרשותך בעתיד.",
		MsgClarify:         "לא הבנתי, אפשר לנסח שוב?",
		MsgSystemError:     "מצטערים, אירעה תקלה זמנית במערכת. אנא נסה שוב בעוד מספר דקות.",
		MsgAIUnavailable:   "המערכת אינה זמינה כרגע. נציג יחזור אליך בהקדם.",
	},
	lang.Arabic: {
		MsgGreeting:        "مرحبا، شكرا لتواصلك مع 'أرضنا بيتنا'. نحن هنا لنقدم لك أفضل الحلول. قبل أن نتقدم – كيف حالك اليوم؟",
		MsgAskName:         "يسعدني سماع ذلك. لنتحدث بشكل شخصي، ما هو اسمك؟",
		MsgAskAmount:       "تشرفنا [Name]. ما هو المبلغ الذي ترغب في الحصول عليه؟",
		MsgAskCity:         "في أي بلدة تسكن؟",
		MsgAskPurpose:      "ما هو الغرض من القرض؟",
		MsgAskProperty:     "هل تملك أنت أو أحد أقاربك من الدرجة الأولى عقاراً؟ (نعم / لا)",
		MsgAskDetails:      "باسم من مسجل العقار، وأين هو مسجل (طابو / دائرة أراضي / غير مسجل)، وهل يوجد رخصة بناء؟",
		MsgAskRisk:         "هل كانت هناك مشاكل بنكية في آخر 3 سنوات؟",
		MsgAskAnythingElse: "هل هناك شيء آخر تود إضافته قبل أن ننهي؟",
		MsgAskCallTime:     "تم تحويل التفاصيل لمندوبنا. متى يناسبك الاتصال؟",
		MsgClosingAck:      "شكرا جزيلا! سيتصل بك مندوبنا في الوقت الذي حددته.",
		MsgRejectAmount:    "نعتذر، نتعامل مع طلبات تبدأ من [Min] شيكل.",
		MsgClarify:         "لم أفهم، هل يمكنك الإعادة؟",
		MsgSystemError:     "نعتذر، حدث خلل مؤقت في النظام. يرجى المحاولة مرة أخرى بعد بضع دقائق.",
		MsgAIUnavailable:   "النظام غير متاح حاليا. سيتواصل معك مندوبنا قريبا.",
	},
	lang.Russian: {
		MsgGreeting:        "Здравствуйте, спасибо за обращение в 'Адматейну Бейтейну'. Мы здесь, чтобы предложить вам лучшие решения. Прежде чем продолжить – как вы сегодня?",
		MsgAskName:         "Рад слышать. Как вас зовут?",
		MsgAskAmount:       "Приятно познакомиться, [Name]. Какую сумму вы хотите получить?",
		MsgAskCity:         "В каком городе вы живете?",
		MsgAskPurpose:      "Какова цель кредита?",
		MsgAskProperty:     "Есть ли недвижимость у вас или у близких родственников? (Да / Нет)",
		MsgAskDetails:      "На чье имя записана недвижимость, где она зарегистрирована (Табу / Минхаль / не зарегистрирована) и есть ли разрешение на строительство?",
		MsgAskRisk:         "Были ли банковские проблемы за последние 3 года?",
		MsgAskAnythingElse: "Хотите что-нибудь добавить, прежде чем мы закончим?",
		MsgAskCallTime:     "Детали переданы представителю. Когда вам удобно принять звонок?",
		MsgClosingAck:      "Большое спасибо! Наш представитель свяжется с вами в указанное время.",
		MsgRejectAmount:    "Извините, мы работаем с суммами от [Min] шекелей.",
		MsgClarify:         "Я не понял, повторите пожалуйста.",
		MsgSystemError:     "Извините, произошла временная ошибка системы. Пожалуйста, попробуйте через несколько минут.",
		MsgAIUnavailable:   "Система сейчас недоступна. Наш представитель свяжется с вами в ближайшее время.",
	},
}

// stepQuestions maps a step to the catalogue entry that asks for it.
var stepQuestions = map[models.Step]MessageKey{
	models.StepGreeting:          MsgGreeting,
	models.StepGetName:           MsgAskName,
	models.StepQualification:     MsgAskAmount,
	models.StepCity:              MsgAskCity,
	models.StepPurpose:           MsgAskPurpose,
	models.StepPropertyOwnership: MsgAskProperty,
	models.StepPropertyDetails:   MsgAskDetails,
	models.StepRiskCheck:         MsgAskRisk,
	models.StepAnythingElse:      MsgAskAnythingElse,
	models.StepClosing:           MsgAskCallTime,
	models.StepCompleted:         MsgClosingAck,
}

// Message returns the catalogue entry for key in language l, falling back to Hebrew.
func Message(l lang.Code, key MessageKey) string {
	if msgs, ok := catalogue[lang.Normalize(l)]; ok {
		if m, ok := msgs[key]; ok {
			return m
		}
	}
	return catalogue[lang.Default][key]
}

// Greeting returns the fixed opening message, sent verbatim for the first step.
func Greeting(l lang.Code) string {
	return Message(l, MsgGreeting)
}

// Question returns the fixed message that asks the user for step, with the name filled in.
func Question(l lang.Code, step models.Step, name string) string {
	key, ok := stepQuestions[step]
	if !ok {
		return Message(l, MsgClarify)
	}
	msg := Message(l, key)
	if name == "" {
		msg = strings.ReplaceAll(msg, ", "+namePlaceholder, "")
		msg = strings.ReplaceAll(msg, " "+namePlaceholder, "")
	}
	return strings.ReplaceAll(msg, namePlaceholder, name)
}

// Rejection returns the below-threshold message quoting minAmount.
func Rejection(l lang.Code, minAmount int64) string {
	return strings.ReplaceAll(Message(l, MsgRejectAmount), amountPlaceholder, FormatAmount(minAmount))
}
