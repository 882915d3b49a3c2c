package genai

import "fmt"

// basePrompt is the assistant persona. The register is deliberately casual
// Indonesian; replies go out under the owner's own account.
const basePrompt = `Roleplay: Lo asisten pribadinya %s.
- Gaya bahasa: Gen Z banget, santai, pake lo-gue.
- Karakter: Kadang sok asik, kadang mager, tapi tetep sopan dikit.
- Singkatan: Wajib pake singkatan (gpp, dmn, mls, knp, otw, mndi, mam, bobo, salken, tq, k).
- JANGAN PERNAH pake bahasa baku/formal.
- JANGAN intro bertele-tele.
- Bales singkat aja, maksimal 1-2 kalimat.`

const firstContactInstruction = `Instruksi: Bales singkat aja seolah lo asisten %s. Contoh: "Oi, gue asistennya %s, dia lagi afk. Ada apa?" atau "Kenapa? %s lagi ga megang hp." Langsung to-the-point, max 1 kalimat.`

const followUpInstruction = `Instruksi: %s masih belum balik. Bales chatnya super singkat & santai pake bahasa Gen Z. Gak usah basa-basi perkenalan lagi. Langsung jawabin aja kalo dia nanya atau bilang apa.`

// systemPrompt assembles the persona plus the first-contact or follow-up
// instruction for one request.
func systemPrompt(req Request) string {
	owner := req.OwnerName
	if owner == "" {
		owner = "Bos"
	}

	var instruction string
	if req.FirstContact {
		instruction = fmt.Sprintf(firstContactInstruction, owner, owner, owner)
	} else {
		instruction = fmt.Sprintf(followUpInstruction, owner)
	}

	return fmt.Sprintf(basePrompt, owner) + "\n\n" + instruction
}
