package extraction

// singleImagePrompt accompanies a photo or scan of one invoice
const singleImagePrompt = `You are an expert accountant reading an invoice or receipt. Extract its data.

Line items ("conceptos") are mandatory:
1. Look for tables, lists or lines describing products or services.
2. If there are detailed lines, extract EACH one with description, quantity and unit price.
3. If there are no detailed lines, return ONE generic item:
   - "descripcion": "Varios productos/servicios" plus a short description
   - "cantidad": 1.0
   - "precio_unitario": the invoice total

Payment status:
4. Look for visual evidence that the invoice was paid: stamps such as "PAGADO", "COBRADO",
   "PAID", handwriting that indicates payment, or a signature near the totals.
5. If you find such evidence set "estado" to "Pagada". Otherwise set it to null.

Return ONLY this JSON object:
{
  "emisor": "issuer name", "cif": "tax identifier", "fecha": "DD/MM/YYYY", "total": 100.0,
  "base_imponible": 82.64, "impuestos": {"iva": 21.0}, "moneda": "€", "estado": "Pagada",
  "conceptos": [{"descripcion": "Product 1", "cantidad": 2.0, "precio_unitario": 25.0}]
}
Never return an empty "conceptos" array.`

// multiPagePrompt precedes the text and images of every page of one PDF invoice
const multiPagePrompt = `You are an expert accountant. The following texts and images were extracted from
the pages of ONE SINGLE invoice in PDF form. Analyse all of the content together and produce one
unified answer.

Extract these fields and answer strictly with one JSON object:
"emisor", "cif", "fecha" (DD/MM/YYYY), "total", "base_imponible", "impuestos" (name -> amount),
"moneda", "conceptos" (list of {"descripcion", "cantidad", "precio_unitario"}) and "estado".

For "estado" look for visual evidence of payment such as "PAGADO" or "COBRADO" stamps or
signatures. If found use "Pagada", otherwise null.
If a field appears on several pages (for example "emisor") use its first appearance.
If line items are spread over several pages combine them all into a single list.
"total" and "base_imponible" are usually on the last page; prefer those values.`

// singlePagePrompt is used in per-page mode, one call per PDF page
const singlePagePrompt = `You are an expert accountant. The following content is ONE page of a possibly
multi-page invoice. Extract only what appears on this page and answer with one JSON object using
the keys "emisor", "cif", "fecha" (DD/MM/YYYY), "total", "base_imponible", "impuestos", "moneda",
"conceptos" (list of {"descripcion", "cantidad", "precio_unitario"}) and "estado".
Use null for anything not present on this page. Do not invent line items.`

// pageHeader labels each page's content in a multi-page request
const pageHeader = "--- Page %d ---"
